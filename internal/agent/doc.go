// Package agent изолирует работу с брокером от обработки сообщений.
//
// # Обзор
//
// Agent — горутина, которая владеет AMQP-соединением и каналом.
// Она проходит handshake (connect → channel → топология → QoS → consume),
// пересылает доставки worker'у через ipc.Queue и применяет ack/nack
// по результатам, которые worker возвращает во встречной очереди.
// Worker никогда не обращается к соединению напрямую.
//
// # Жизненный цикл
//
//	idle → connecting → channel_opening → declaring_dead_exchange → declaring_dead_queue
//	     → binding_dead_queue → declaring_main_queue → setting_qos → consuming
//
// Из любого состояния ошибка или сигнал отключения ведут в disconnecting, затем в closed.
// Переходы описывает Machine; Agent только выполняет действие текущего состояния.
//
//   - declare = no: channel_opening → setting_qos
//   - deads выключены: channel_opening → declaring_main_queue
//   - declare = only: declaring_main_queue → disconnecting
//
// Agent не переподключается. Для нового подключения worker создаёт новый Agent
// и новую пару очередей.
//
// # Опрос входящей очереди
//
// В состоянии consuming agent по таймеру забирает всё, что прислал worker:
// Outcome применяется к каналу, AgentFault (сигнал отключения) прекращает опрос.
// Интервал опроса адаптивный: начинается с 200ms, сужается до длительности
// успешно обработанных сообщений и расширяется в 1.5 раза на каждом тике.
//
// # Ошибки
//
// Ошибки брокера превращаются в ipc.AgentFault и отправляются worker'у.
// Коды 0 и 200 логируются как info, остальные как error.
// Delivery во входящей очереди agent'а — нарушение протокола, agent паникует.
package agent
