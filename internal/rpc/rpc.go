package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shaiso/Conveyor/internal/dispatch"
)

// Ошибки клиента.
var (
	// ErrUnknownMethod — метод не опубликован.
	ErrUnknownMethod = errors.New("no such method")

	// ErrUnknownKwarg — именованный аргумент не входит в список допустимых.
	ErrUnknownKwarg = errors.New("no such key")

	// ErrNoSender — клиент создан без Sender.
	ErrNoSender = errors.New("rpc sender is nil")

	// ErrBadMethod — пустое или повторяющееся имя метода.
	ErrBadMethod = errors.New("invalid method definition")
)

// Sender публикует JSON-сообщение. Реализуется mq.Publisher.
type Sender interface {
	SendJSON(ctx context.Context, v any, headers map[string]any) error
}

// Method — опубликованный метод.
// Kwargs == nil — допустимы любые именованные аргументы.
type Method struct {
	Name   string
	Kwargs []string
}

// Func — заглушка метода, привязанная к клиенту.
type Func func(ctx context.Context, args []any, kwargs map[string]any) error

// Client — клиент вызовов через очередь.
type Client struct {
	sender  Sender
	methods map[string]map[string]struct{}
	headers map[string]any
}

// DefaultMethods — методы, опубликованные по умолчанию.
var DefaultMethods = []Method{{Name: dispatch.MethodPing}}

// NewClient создаёт клиент. Без methods публикуется только ping.
func NewClient(sender Sender, methods ...Method) (*Client, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if len(methods) == 0 {
		methods = DefaultMethods
	}

	c := &Client{
		sender:  sender,
		methods: make(map[string]map[string]struct{}, len(methods)),
	}

	for _, m := range methods {
		if m.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrBadMethod)
		}
		if _, dup := c.methods[m.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate %q", ErrBadMethod, m.Name)
		}

		var allowed map[string]struct{}
		if m.Kwargs != nil {
			allowed = make(map[string]struct{}, len(m.Kwargs))
			for _, k := range m.Kwargs {
				allowed[k] = struct{}{}
			}
		}
		c.methods[m.Name] = allowed
	}

	return c, nil
}

// WithHeaders возвращает копию клиента, добавляющую headers к каждому вызову.
func (c *Client) WithHeaders(headers map[string]any) *Client {
	cp := *c
	cp.headers = headers
	return &cp
}

// Methods возвращает отсортированный список опубликованных методов.
func (c *Client) Methods() []string {
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stub возвращает заглушку метода name.
func (c *Client) Stub(name string) (Func, error) {
	if _, ok := c.methods[name]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownMethod, name)
	}
	return func(ctx context.Context, args []any, kwargs map[string]any) error {
		return c.Call(ctx, name, args, kwargs)
	}, nil
}

// Call проверяет аргументы и публикует конверт [name, args, kwargs].
func (c *Client) Call(ctx context.Context, name string, args []any, kwargs map[string]any) error {
	allowed, ok := c.methods[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownMethod, name)
	}

	if allowed != nil {
		for k := range kwargs {
			if _, ok := allowed[k]; !ok {
				return fmt.Errorf("%w %s for method %s", ErrUnknownKwarg, k, name)
			}
		}
	}

	env := dispatch.Envelope{Method: name, Args: args, Kwargs: kwargs}
	if err := c.sender.SendJSON(ctx, env, c.headers); err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	return nil
}
