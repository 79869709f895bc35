package monitoring

import (
	"fmt"
	"net/http"

	"github.com/newrelic/go-agent/v3/integrations/nrlogrus"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/carenexus/ehrc-app/conf"
	"github.com/carenexus/ehrc-app/log"
)

var a *apm

type apm struct {
	App *newrelic.Application
}

// WrapHandler instruments one route. With no agent configured the pattern
// and handler pass through untouched.
func (a apm) WrapHandler(pattern string, h http.HandlerFunc) (string, func(http.ResponseWriter, *http.Request)) {
	if a.App != nil {
		return newrelic.WrapHandleFunc(a.App, pattern, h)
	}
	return pattern, h
}

func (a apm) Start(msg string, w http.ResponseWriter, r *http.Request) *newrelic.Transaction {
	if a.App != nil {
		txn := a.App.StartTransaction(msg)
		txn.SetWebRequestHTTP(r)
		txn.SetWebResponse(w)
		return txn
	}
	return nil
}

func (a apm) End(txn *newrelic.Transaction) {
	if txn != nil {
		txn.End()
	}
}

func GetMonitor() *apm {
	if a == nil {
		target := conf.GetEnv("DEPLOYMENT_TARGET")
		if target == "" {
			target = "local"
		}
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(fmt.Sprintf("EHRC-%s", target)),
			newrelic.ConfigLicense(conf.GetEnv("NEW_RELIC_LICENSE_KEY")),
			newrelic.ConfigEnabled(conf.GetEnv("NEW_RELIC_LICENSE_KEY") != ""),
			nrlogrus.ConfigStandardLogger(),
			func(cfg *newrelic.Config) {
				cfg.HighSecurity = true
			},
		)
		if err != nil {
			log.EHR.Error(err)
		}
		a = &apm{
			App: app,
		}
	}
	return a
}
