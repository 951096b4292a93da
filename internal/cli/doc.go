// Package cli реализует команды conveyor.
//
// # Команды
//
//   - consume: подключается к очереди и вызывает методы из dispatch.Registry
//   - declare: только объявляет топологию очереди
//   - send: публикует одно сообщение
//   - call: публикует вызов метода [method, args, kwargs]
//   - plan: показывает топологию, которую объявит conveyor
//
// # Конфигурация
//
// Значения собираются в config.Config в порядке: значения по умолчанию,
// --config, --env-file, переменные окружения, явно заданные флаги.
// Это происходит в PersistentPreRunE корневой команды, поэтому
// все подкоманды видят уже готовую конфигурацию.
//
// # Коды завершения
//
// consume и declare возвращают *ExitError с кодом цикла приложения
// (см. пакет app). Ошибка конфигурации — код 2, прочие ошибки — 1.
//
//	root := cli.NewRootCmd(version, cli.Options{})
//	err := root.ExecuteContext(ctx)
//	os.Exit(cli.ExitCode(err))
package cli
