// Package mqtest — брокер RabbitMQ в памяти для тестов.
//
// Broker реализует mq.Dialer и поддерживает подмножество AMQP 0-9-1,
// которым пользуется Conveyor: exchange/queue declare, bind, qos, consume,
// cancel, ack/nack (с dead-lettering по x-dead-letter-exchange), publish.
//
// Поведение приближено к RabbitMQ:
//   - повторное объявление очереди с другими аргументами закрывает канал с кодом 406
//   - consume из несуществующей очереди закрывает канал с кодом 404
//   - неподтверждённые сообщения возвращаются в очередь при закрытии канала
//   - prefetch ограничивает число неподтверждённых доставок на канал
//
// Для проверки отказов есть FailDial, FailNext, Hang и DropConnections.
// Ops возвращает журнал выполненных операций в порядке вызова.
package mqtest
