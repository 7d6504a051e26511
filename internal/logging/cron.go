package logging

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// CronLogger adapts zerolog to robfig/cron's Logger interface.
type CronLogger struct {
	L zerolog.Logger
}

func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debug().Fields(keysAndValues).Msg(msg)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// PrintLogger adapts zerolog to the Println/Printf logger the Telegram client
// library expects.
type PrintLogger struct {
	L zerolog.Logger
}

func (p PrintLogger) Println(v ...interface{}) {
	p.L.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p PrintLogger) Printf(format string, v ...interface{}) {
	p.L.Debug().Msgf(format, v...)
}
