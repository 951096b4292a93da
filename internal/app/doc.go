// Package app — цикл приложения-потребителя: подключение, работа,
// отключение и, при включённом Reconnect, повтор цикла.
//
// Коды завершения:
//
//	0 — штатная остановка
//	1 — ошибка после подключения (объявление топологии, подписка)
//	2 — ошибка подключения (соединение или канал)
package app
