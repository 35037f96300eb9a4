package proxy

import (
	"context"
	"fmt"

	"github.com/odvcencio/lockstep/pkg/browser"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

// Adapter hooks an application framework into a device. AfterNavigate runs
// on the raw session after every successful url command, so nothing it
// executes is recorded.
type Adapter interface {
	Name() string
	AfterNavigate(ctx context.Context, session browser.Session) error
}

// AppFrameworkXDMVC selects the XD-MVC adapter.
const AppFrameworkXDMVC = "xdmvc"

// XDMVC installs an event logger on XD-MVC pages so that tests can count the
// framework events a device received.
type XDMVC struct{}

const xdmvcEventLogger = `if (window.XDmvc && !window.eventLogger) {
  window.eventLogger = {counts: {}};
  ['XDconnection', 'XDdisconnection', 'XDupdate', 'XDroleChanged'].forEach(function (event) {
    window.eventLogger.counts[event] = 0;
    XDmvc.on(event, function () { window.eventLogger.counts[event]++; });
  });
}
return !!window.eventLogger;`

func (XDMVC) Name() string { return AppFrameworkXDMVC }

// AfterNavigate injects the event logger into the loaded page.
func (XDMVC) AfterNavigate(ctx context.Context, session browser.Session) error {
	_, err := session.Execute(ctx, browser.CommandExecute, xdmvcEventLogger)
	return err
}

// EventCounts reads the counters collected by the XD-MVC event logger.
func (XDMVC) EventCounts(ctx context.Context, session browser.Session) (map[string]any, error) {
	v, err := session.Execute(ctx, browser.CommandExecute, `return window.eventLogger ? window.eventLogger.counts : null;`)
	if err != nil {
		return nil, err
	}
	counts, _ := v.(map[string]any)
	return counts, nil
}

// AdapterFor resolves a configured app framework. An empty name means no
// adapter.
func AdapterFor(name string) (Adapter, error) {
	switch name {
	case "":
		return nil, nil
	case AppFrameworkXDMVC:
		return XDMVC{}, nil
	default:
		return nil, lserrors.New(lserrors.ErrCodeInvalidInput, fmt.Sprintf("unknown app framework %q", name)).
			WithRemediation(fmt.Sprintf("set app_framework to %q or leave it empty", AppFrameworkXDMVC))
	}
}

// adapterMiddleware runs the adapter hook after successful navigation. A
// failing hook fails the command.
func (p *Proxy) adapterMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (any, error) {
			result, err := next(ec)
			if err != nil || p.adapter == nil || ec.Command != browser.CommandURL {
				return result, err
			}
			if herr := p.adapter.AfterNavigate(ec.Context, p.session); herr != nil {
				return result, lserrors.Wrap(herr, lserrors.ErrCodeAdapterHook,
					fmt.Sprintf("%s hook failed after navigation", p.adapter.Name())).
					WithContext("device_id", p.deviceID)
			}
			return result, nil
		}
	}
}
