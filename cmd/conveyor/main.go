// Conveyor — потребитель и отправитель сообщений RabbitMQ.
//
// Использование:
//
//	conveyor [--config FILE] [-u URL] [-q QUEUE] [--declare yes|no|only] [-v...] <command>
//
// Команды:
//
//	consume  Обрабатывать сообщения очереди
//	declare  Объявить топологию очереди и выйти
//	send     Отправить одно сообщение
//	call     Отправить вызов метода
//	plan     Показать топологию очереди
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cli.NewRootCmd(version, cli.Options{}).ExecuteContext(ctx)
	code := cli.ExitCode(err)

	// код цикла приложения уже залогирован
	var exitErr *cli.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Err == nil) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}

	cancel()
	os.Exit(code)
}
