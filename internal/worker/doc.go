// Package worker обрабатывает сообщения из очереди RabbitMQ.
//
// # Обзор
//
// Worker не работает с брокером напрямую. Соединением владеет agent
// (пакет agent), а worker получает от него доставки через ipc.Queue,
// вызывает Handler и возвращает результат во встречной очереди.
//
//	w, err := worker.New(worker.Config{
//	    URL:      url,
//	    Queue:    "orders.input",
//	    Prefetch: 1,
//	    Handler:  handle,
//	    Dialer:   mq.AMQPDialer{},
//	    Logger:   logger,
//	})
//
//	if err := w.Connect(ctx); err != nil {
//	    return err
//	}
//	return w.Run(ctx) // отключается сам при выходе
//
// # Цикл обработки
//
// Пока worker не остановлен и agent жив:
//
//  1. Пустая очередь — пауза с адаптивным интервалом, интервал растёт
//  2. AgentFault — логируется (коды 0 и 200 как info)
//  3. Delivery — вызов Handler с замером времени
//  4. Успех — Outcome{Ack}, интервал сужается до времени обработки
//  5. Ошибка — Outcome{Nack}; при выключенных deads сообщение возвращается
//     в очередь, и worker делает паузу min(2^n s, MaxSleep)
//
// # Отключение
//
// Disconnect отправляет agent'у сигнал отключения и ждёт TerminateGrace.
// Если agent не завершился, он останавливается принудительно.
// Доставки, оставшиеся в очереди, не обрабатываются: брокер вернёт их
// в очередь при закрытии канала.
//
// # Переподключение
//
// Connect всегда создаёт нового agent'а и новую пару очередей.
// Счётчики (Stats) живут столько же, сколько Worker.
package worker
