package ehrccli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/carenexus/ehrc-app/conf"
	"github.com/carenexus/ehrc-app/ehrc/client"
	"github.com/carenexus/ehrc-app/ehrc/constants"
	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/ehrc/fixture"
	"github.com/carenexus/ehrc-app/ehrc/health"
	"github.com/carenexus/ehrc-app/ehrc/metrics"
	"github.com/carenexus/ehrc-app/ehrc/records"
	"github.com/carenexus/ehrc-app/ehrc/servicemux"
	"github.com/carenexus/ehrc-app/ehrc/utils"
	"github.com/carenexus/ehrc-app/log"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "ehrc"
const Usage = "EHR Connect CLI"

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	var identifier, scanValue, patientID, encounterID, filePath, docFormat, addr, datasetDir, clientID, clientSecret string
	var encounterLimit, syntheticCount int
	var watchDataset bool
	app.Commands = []cli.Command{
		{
			Name:     "serve-fixture",
			Category: "Fixture tools",
			Usage:    "Start the fixture EHR API server",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "addr",
					Usage:       "Address to listen on",
					Value:       ":3000",
					Destination: &addr,
				},
				cli.StringFlag{
					Name:        "dataset",
					Usage:       "Directory of FHIR bundle files loaded alongside the builtin dataset",
					Destination: &datasetDir,
				},
				cli.BoolFlag{
					Name:        "watch",
					Usage:       "Reload the dataset directory when its files change",
					Destination: &watchDataset,
				},
				cli.IntFlag{
					Name:        "synthetic",
					Usage:       "Number of synthetic patients added to the dataset",
					Destination: &syntheticCount,
				},
				cli.StringFlag{
					Name:        "client-id",
					Usage:       "Client id accepted by the token endpoint (generated when omitted)",
					Destination: &clientID,
				},
				cli.StringFlag{
					Name:        "client-secret",
					Usage:       "Client secret matching client-id",
					Destination: &clientSecret,
				},
			},
			Action: func(c *cli.Context) error {
				return serveFixture(app.Writer, addr, datasetDir, clientID, clientSecret, syntheticCount, watchDataset)
			},
		},
		{
			Name:     "create-fixture-credentials",
			Category: "Fixture tools",
			Usage:    "Generate a client id and secret for the fixture token endpoint",
			Action: func(c *cli.Context) error {
				creds, err := fixture.GenerateCredentials()
				if err != nil {
					return err
				}
				return writeJSON(app.Writer, creds)
			},
		},
		{
			Name:     "get-patient",
			Category: "Clinical records",
			Usage:    "Look up a patient by MRN or scanned identifier",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "identifier",
					Usage:       "Medical record number",
					Destination: &identifier,
				},
				cli.StringFlag{
					Name:        "scan",
					Usage:       "Raw scanned value, decoded before lookup",
					Destination: &scanValue,
				},
			},
			Action: func(c *cli.Context) error {
				id := identifier
				if scanValue != "" {
					id = fhir.DecodeScan(scanValue)
				}
				if id == "" {
					return errors.New("an identifier (--identifier) or scan (--scan) is required")
				}

				svc, err := newRecordsService()
				if err != nil {
					return err
				}
				defer func() { publishClientStats(svc.Stats()) }()

				patient, err := svc.GetPatientByIdentifier(context.Background(), id)
				if err != nil {
					return err
				}
				return writeJSON(app.Writer, patientOutput{patient, patient.FullName()})
			},
		},
		{
			Name:     "active-conditions",
			Category: "Clinical records",
			Usage:    "List a patient's active conditions",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "patient",
					Usage:       "Patient resource id",
					Destination: &patientID,
				},
			},
			Action: func(c *cli.Context) error {
				if patientID == "" {
					return errors.New("a patient id (--patient) is required")
				}

				svc, err := newRecordsService()
				if err != nil {
					return err
				}
				defer func() { publishClientStats(svc.Stats()) }()

				conditions, err := svc.GetActiveConditions(context.Background(), patientID)
				if err != nil {
					return err
				}
				return writeJSON(app.Writer, conditions)
			},
		},
		{
			Name:     "active-medications",
			Category: "Clinical records",
			Usage:    "List a patient's active medication orders",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "patient",
					Usage:       "Patient resource id",
					Destination: &patientID,
				},
			},
			Action: func(c *cli.Context) error {
				if patientID == "" {
					return errors.New("a patient id (--patient) is required")
				}

				svc, err := newRecordsService()
				if err != nil {
					return err
				}
				defer func() { publishClientStats(svc.Stats()) }()

				medications, err := svc.GetActiveMedications(context.Background(), patientID)
				if err != nil {
					return err
				}
				return writeJSON(app.Writer, medications)
			},
		},
		{
			Name:     "recent-encounters",
			Category: "Clinical records",
			Usage:    "List a patient's most recent encounters",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "patient",
					Usage:       "Patient resource id",
					Destination: &patientID,
				},
				cli.IntFlag{
					Name:        "limit",
					Usage:       "Maximum number of encounters returned",
					Value:       records.DefaultEncounterCount,
					Destination: &encounterLimit,
				},
			},
			Action: func(c *cli.Context) error {
				if patientID == "" {
					return errors.New("a patient id (--patient) is required")
				}

				svc, err := newRecordsService()
				if err != nil {
					return err
				}
				defer func() { publishClientStats(svc.Stats()) }()

				encounters, err := svc.GetRecentEncounters(context.Background(), patientID, encounterLimit)
				if err != nil {
					return err
				}
				return writeJSON(app.Writer, encounters)
			},
		},
		{
			Name:     "submit-document",
			Category: "Clinical records",
			Usage:    "Submit a completed document against an encounter",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "encounter",
					Usage:       "Encounter resource id the document belongs to",
					Destination: &encounterID,
				},
				cli.StringFlag{
					Name:        "file",
					Usage:       "Path of the document to submit",
					Destination: &filePath,
				},
				cli.StringFlag{
					Name:        "format",
					Usage:       "Content type of the document",
					Value:       "application/pdf",
					Destination: &docFormat,
				},
			},
			Action: func(c *cli.Context) error {
				if filePath == "" {
					return errors.New("a document file (--file) is required")
				}
				content, err := ioutil.ReadFile(filepath.Clean(filePath))
				if err != nil {
					return err
				}

				svc, err := newRecordsService()
				if err != nil {
					return err
				}
				defer func() { publishClientStats(svc.Stats()) }()

				if err := svc.SubmitDocument(context.Background(), encounterID, content, docFormat); err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Submitted document for encounter %s\n", encounterID)
				return nil
			},
		},
		{
			Name:     "decode-scan",
			Category: "Clinical records",
			Usage:    "Decode a scanned wristband or label identifier",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "value",
					Usage:       "Scanned value as text",
					Destination: &scanValue,
				},
				cli.StringFlag{
					Name:        "file",
					Usage:       "File holding raw scanner output",
					Destination: &filePath,
				},
			},
			Action: func(c *cli.Context) error {
				value := scanValue
				if filePath != "" {
					raw, err := ioutil.ReadFile(filepath.Clean(filePath))
					if err != nil {
						return err
					}
					value, err = fhir.CleanScanBytes(raw)
					if err != nil {
						return err
					}
				}
				if value == "" {
					return errors.New("a value (--value) or file (--file) is required")
				}

				id, format := fhir.DecodeScanFormat(value)
				return writeJSON(app.Writer, decodedScan{Identifier: id, Format: format.String()})
			},
		},
		{
			Name:     "health",
			Category: "Monitoring",
			Usage:    "Probe EHR API reachability and token acquisition",
			Action: func(c *cli.Context) error {
				cfg, err := client.LoadConfig()
				if err != nil {
					return err
				}
				checker := health.NewHealthChecker(cfg)

				var report healthReport
				report.EHRDetail, report.EHRReachable = checker.IsEHRReachable()
				report.AuthDetail, report.AuthOK = checker.IsAuthOK(context.Background())
				report.TokenValid = checker.HasValidToken()

				if err := writeJSON(app.Writer, report); err != nil {
					return err
				}
				if !report.EHRReachable || !report.AuthOK {
					return errors.New("ehr api is not healthy")
				}
				return nil
			},
		},
		{
			Name:     "ping",
			Category: "Monitoring",
			Usage:    "Make one authenticated request and report client statistics",
			Action: func(c *cli.Context) error {
				cfg, err := client.LoadConfig()
				if err != nil {
					return err
				}
				ehr := client.NewEHRClient(cfg)

				_, pingErr := ehr.Get(context.Background(), "/metadata", nil)

				snapshot := ehr.Stats()
				publishClientStats(snapshot)
				if err := writeJSON(app.Writer, snapshot); err != nil {
					return err
				}
				return pingErr
			},
		},
	}
	return app
}

type patientOutput struct {
	*fhir.Patient
	FullName string `json:"full_name"`
}

type decodedScan struct {
	Identifier string `json:"identifier"`
	Format     string `json:"format"`
}

type healthReport struct {
	EHRReachable bool   `json:"ehr_reachable"`
	EHRDetail    string `json:"ehr_detail"`
	AuthOK       bool   `json:"auth_ok"`
	AuthDetail   string `json:"auth_detail"`
	TokenValid   bool   `json:"token_valid"`
}

func serveFixture(w io.Writer, addr, datasetDir, clientID, clientSecret string, syntheticCount int, watch bool) error {
	dataset, err := fixture.NewDataset(true, datasetDir)
	if err != nil {
		return err
	}

	if syntheticCount > 0 {
		bundle, err := fixture.SyntheticBundle(syntheticCount)
		if err != nil {
			return err
		}
		if err := dataset.AddBundle(bundle); err != nil {
			return err
		}
	}

	if watch {
		stop, err := dataset.Watch()
		if err != nil {
			return err
		}
		defer stop()
	}

	server, err := fixture.NewServer(dataset)
	if err != nil {
		return err
	}

	if clientID != "" {
		if err := server.Register(clientID, clientSecret); err != nil {
			return err
		}
		fmt.Fprintf(w, "Registered fixture client %s\n", clientID)
	} else {
		// The generated secret is only printed once; the server keeps a hash.
		creds, err := server.GenerateCredentials()
		if err != nil {
			return err
		}
		if err := writeJSON(w, creds); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s\n", "Starting fixture EHR server...")

	srv := &http.Server{
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(utils.GetEnvInt("EHRC_FIXTURE_READ_TIMEOUT", 10)) * time.Second,
		WriteTimeout: time.Duration(utils.GetEnvInt("EHRC_FIXTURE_WRITE_TIMEOUT", 20)) * time.Second,
		IdleTimeout:  time.Duration(utils.GetEnvInt("EHRC_FIXTURE_IDLE_TIMEOUT", 120)) * time.Second,
	}

	smux := servicemux.New(addr)
	smux.AddServer(srv, "")
	smux.Serve()

	return nil
}

func newRecordsService() (records.Service, error) {
	cfg, err := client.LoadConfig()
	if err != nil {
		return nil, err
	}
	return records.NewService(client.NewEHRClient(cfg)), nil
}

// publishClientStats pushes the snapshot to CloudWatch. Publishing is active
// only in deployed environments.
func publishClientStats(snapshot client.StatsSnapshot) {
	cloudWatchEnv := conf.GetEnv("DEPLOYMENT_TARGET")
	if cloudWatchEnv == "" {
		return
	}

	sampler, err := metrics.NewSampler("EHRC", "Count")
	if err != nil {
		log.EHR.Error(errors.Wrap(err, "failed to create new metric sampler"))
		return
	}
	if err := sampler.PutClientStats(snapshot, []metrics.Dimension{
		{Name: "Environment", Value: cloudWatchEnv},
	}); err != nil {
		log.EHR.Error(err)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
