// Package scheduler запускает периодические фоновые задачи процесса.
//
// Задачи задаются cron-выражением (5 полей) или дескриптором
// ("@every 30s", "@hourly"). Сейчас так планируется вывод статистики
// worker'а в лог (флаг --stats-every команды consume).
//
// Структура:
//   - scheduler.go — Scheduler поверх robfig/cron (Add, Run)
//   - cron.go      — парсинг выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{Logger: logger})
//	if err := sched.Add("stats", "@every 1m", w.LogStats); err != nil {
//	    return err
//	}
//	go sched.Run(ctx) // останавливается по ctx
package scheduler
