// Package backoff содержит политики задержек Conveyor.
//
//   - Adaptive  — интервал опроса IPC-очереди: сужается к наблюдаемому времени
//     обработки и расширяется (×1.5, не выше 200ms) при простое.
//   - Nack      — пауза после подряд идущих ошибок обработчика: min(2^n s, max).
//   - Reconnect — задержки между попытками подключения publisher'а:
//     0, 1s, 2s, 4s ... с ограничением сверху и лимитом попыток (-1 — без лимита).
//
// Все типы не потокобезопасны: каждым экземпляром владеет одна горутина.
package backoff
