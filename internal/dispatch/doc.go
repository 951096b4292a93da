// Package dispatch вызывает методы по сообщениям-конвертам.
//
// Конверт — JSON-массив из трёх элементов с content type application/json:
//
//	["method", [args...], {kwargs...}]
//
// Registry хранит методы по имени. Имя проверяется при регистрации,
// а Registry.Handle подходит как worker.Handler:
//
//	reg := dispatch.NewRegistry()
//	reg.MustRegister("resize", resize)
//	dispatch.RegisterBuiltins(reg) // ping, log
//
//	w, _ := worker.New(worker.Config{Handler: reg.Handle, ...})
//
// Некорректный конверт, неизвестный метод и ошибка метода
// одинаково приводят к nack.
package dispatch
