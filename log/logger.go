package log

import (
	"os"
	"path/filepath"
	"time"

	"github.com/carenexus/ehrc-app/conf"
	"github.com/sirupsen/logrus"
)

var (
	// EHR covers the protocol client and the records facade.
	EHR logrus.FieldLogger
	// Auth covers the token manager and the fixture token endpoint.
	Auth logrus.FieldLogger
	// Fixture covers the fixture EHR server.
	Fixture logrus.FieldLogger
	// Request covers HTTP request logging middleware.
	Request logrus.FieldLogger
)

func init() {
	EHR = Logger(logrus.New(), conf.GetEnv("EHRC_ERROR_LOG"),
		"ehrc", conf.GetEnv("ENVIRONMENT"))
	Auth = Logger(logrus.New(), conf.GetEnv("EHRC_AUTH_LOG"),
		"ehrc", conf.GetEnv("ENVIRONMENT"))
	Fixture = Logger(logrus.New(), conf.GetEnv("EHRC_FIXTURE_LOG"),
		"fixture", conf.GetEnv("ENVIRONMENT"))
	Request = Logger(logrus.New(), conf.GetEnv("EHRC_REQUEST_LOG"),
		"fixture", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
