// Package config — конфигурация conveyor.
//
// Порядок применения: значения по умолчанию, YAML-файл (--config),
// .env-файл (--env-file), переменные окружения, флаги командной строки.
package config
