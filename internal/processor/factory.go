package processor

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mattjoyce/intake/internal/config"
	"github.com/mattjoyce/intake/internal/monitor"
)

// New builds the processor described by conf.
func New(conf config.ProcessorConfig, logger *slog.Logger) (monitor.Processor, error) {
	base := Base{Logger: logger}
	switch conf.Type {
	case "", config.ProcessorNoop:
		return Noop{Base: base}, nil
	case config.ProcessorExec:
		keys := make([]string, 0, len(conf.Env))
		for k := range conf.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := make([]string, 0, len(keys))
		for _, k := range keys {
			env = append(env, k+"="+conf.Env[k])
		}
		p := &Exec{
			Base:    base,
			Command: append([]string(nil), conf.Command...),
			Timeout: conf.Timeout,
			Env:     env,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown processor type %q", conf.Type)
	}
}
