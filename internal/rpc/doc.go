// Package rpc отправляет вызовы методов в очередь.
//
// Client знает список опубликованных методов и для каждого метода
// (необязательно) список допустимых именованных аргументов.
// Вызов кодируется конвертом dispatch.Envelope:
//
//	client, _ := rpc.NewClient(pub, rpc.Method{Name: "resize", Kwargs: []string{"w", "h"}})
//	err := client.Call(ctx, "resize", []any{"img.png"}, map[string]any{"w": 640})
package rpc
