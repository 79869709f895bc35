package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	vegeta "github.com/tsenart/vegeta/lib"
	"github.com/tsenart/vegeta/lib/plot"

	"github.com/carenexus/ehrc-app/ehrc/constants"
)

var (
	accessToken, clientID, clientSecret, apiHost, proto, resourceType, reportFilePath, mrn, patientID string
	freq, duration                                                                                   int
)

func init() {
	flag.StringVar(&accessToken, "token", "", "access token used for api performance testing")
	flag.StringVar(&clientID, "clientID", "", "client id for retrieving an access token")
	flag.StringVar(&clientSecret, "clientSecret", "", "client secret for retrieving an access token")
	flag.StringVar(&apiHost, "host", "localhost:3000", "host to send requests to")
	flag.IntVar(&duration, "duration", 60, "seconds: the total time to run the test")
	flag.IntVar(&freq, "freq", 10, "the number of requests per second")
	flag.StringVar(&proto, "proto", "http", "protocol to use")
	flag.StringVar(&resourceType, "resourceType", "Patient", "resourceType to test")
	flag.StringVar(&mrn, "mrn", "12345678", "medical record number used for Patient searches")
	flag.StringVar(&patientID, "patient", "pat-10001", "patient id used for clinical searches")
	flag.StringVar(&reportFilePath, "report_path", "../../test_results/performance", "path to write the result.html")
	flag.Parse()

	// create folder if doesn't exist for storing the results
	if _, err := os.Stat(reportFilePath); os.IsNotExist(err) {
		err := os.MkdirAll(reportFilePath, os.ModePerm)
		if err != nil {
			panic(err)
		}
	}
}

func main() {
	if accessToken == "" {
		accessToken = fetchAccessToken()
	}

	targeter := makeTarget(accessToken)
	results := runSearchTest(targeter)
	var buf bytes.Buffer
	_, err := results.WriteTo(&buf)
	if err != nil {
		panic(err)
	}
	writeResults(fmt.Sprintf("%s_search_plot", resourceType), buf)
}

func makeTarget(accessToken string) vegeta.Targeter {
	params := url.Values{}
	switch resourceType {
	case "Patient":
		params.Set("identifier", constants.MRNSystem+"|"+mrn)
	case "Condition":
		params.Set("patient", patientID)
		params.Set("clinical-status", constants.StatusActive)
	case "MedicationRequest":
		params.Set("patient", patientID)
		params.Set("status", constants.StatusActive)
	case "Encounter":
		params.Set("patient", patientID)
		params.Set("_sort", "-date")
	default:
		panic(fmt.Sprintf("unsupported resourceType %s", resourceType))
	}

	target := fmt.Sprintf("%s://%s/%s?%s", proto, apiHost, resourceType, params.Encode())

	header := map[string][]string{
		"Accept":        {"application/fhir+json"},
		"Authorization": {fmt.Sprintf("Bearer %s", accessToken)},
	}

	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: "GET",
		URL:    target,
		Header: header,
	})
	return targeter
}

func runSearchTest(target vegeta.Targeter) *plot.Plot {
	fmt.Printf("running search performance for: %s\n", resourceType)
	title := plot.Title(fmt.Sprintf("searchTest_%s", resourceType))
	p := plot.New(title)
	defer p.Close()

	// 10 requests every second for 60 seconds = 600 total calls
	d := time.Second * time.Duration(duration)
	rate := vegeta.Rate{Freq: freq, Per: time.Second}
	plotAttack(p, target, rate, d)

	return p
}

// need to make rate into some sort of pretty string format
func plotAttack(p *plot.Plot, t vegeta.Targeter, r vegeta.Rate, du time.Duration) {
	attacker := vegeta.NewAttacker()
	for results := range attacker.Attack(t, r, du, fmt.Sprintf("%dps:", r.Freq)) {
		err := p.Add(results)
		if err != nil {
			panic(err)
		}
	}
}

func fetchAccessToken() string {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "system/*.read")

	req, err := http.NewRequest("POST", fmt.Sprintf("%s://%s/auth/token", proto, apiHost), strings.NewReader(form.Encode()))
	if err != nil {
		panic(err)
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		panic(err)
	}
	if resp.StatusCode != http.StatusOK {
		panic(fmt.Sprintf("token request returned %d, body '%s'", resp.StatusCode, body))
	}

	var t struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &t); err != nil {
		panic(err)
	}
	return t.AccessToken
}

func writeResults(filename string, buf bytes.Buffer) {
	data := buf.Bytes()
	if len(data) > 0 {
		fn := fmt.Sprintf("%s/%s.html", reportFilePath, filename)
		fmt.Printf("Writing results: %s\n", fn)
		err := ioutil.WriteFile(fn, data, 0644)
		if err != nil {
			panic(err)
		}
	}
}
