package fixture

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/dgrijalva/jwt-go/request"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carenexus/ehrc-app/ehrc/constants"
	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/ehrc/logging"
	"github.com/carenexus/ehrc-app/ehrc/monitoring"
	"github.com/carenexus/ehrc-app/ehrc/responseutils"
	"github.com/carenexus/ehrc-app/log"
	appMiddleware "github.com/carenexus/ehrc-app/middleware"
)

// Server is a self-contained EHR stand-in: an OAuth2 client-credentials token
// endpoint plus the FHIR search and write endpoints the client talks to. It
// signs access tokens with an ephemeral RSA key generated at startup, so
// tokens never outlive the process.
type Server struct {
	dataset     *Dataset
	credentials *credentialStore
	scripts     *scriptBoard
	rw          responseutils.ResponseWriter
	privateKey  *rsa.PrivateKey
	tokenTTL    time.Duration
	issued      int64
}

func NewServer(dataset *Dataset) (*Server, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Wrap(err, "could not generate fixture signing key")
	}

	return &Server{
		dataset:     dataset,
		credentials: newCredentialStore(),
		scripts:     newScriptBoard(),
		rw:          responseutils.NewResponseWriter(),
		privateKey:  key,
		tokenTTL:    time.Duration(envInt("EHRC_FIXTURE_TOKEN_TTL", 1200)) * time.Second,
	}, nil
}

// Register adds a credential pair accepted by the token endpoint.
func (s *Server) Register(clientID, secret string) error {
	return s.credentials.Register(clientID, secret)
}

// GenerateCredentials creates and registers a fresh credential pair.
func (s *Server) GenerateCredentials() (Credentials, error) {
	return s.credentials.GenerateCredentials()
}

// Script queues response statuses for a path, same as POST /__fixture/script.
func (s *Server) Script(path string, statuses ...int) {
	s.scripts.Push(path, statuses...)
}

// IssuedTokens reports how many access tokens the token endpoint has minted.
func (s *Server) IssuedTokens() int64 {
	return atomic.LoadInt64(&s.issued)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	m := monitoring.GetMonitor()
	r.Use(appMiddleware.NewTransactionID, logging.NewStructuredLogger(),
		render.SetContentType(render.ContentTypeJSON),
		appMiddleware.SecurityHeader, appMiddleware.ConnectionClose)

	r.Post(m.WrapHandler("/auth/token", s.token))
	r.Get(m.WrapHandler("/metadata", s.metadata))
	r.Get(m.WrapHandler("/_health", s.health))
	r.Get(m.WrapHandler("/_version", s.version))
	r.Post(m.WrapHandler("/__fixture/script", s.script))

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireToken, s.scripted)
		pr.Get(m.WrapHandler("/Patient", s.searchPatients))
		pr.Get(m.WrapHandler("/Condition", s.searchConditions))
		pr.Get(m.WrapHandler("/MedicationRequest", s.searchMedications))
		pr.Get(m.WrapHandler("/Encounter", s.searchEncounters))
		pr.Post(m.WrapHandler("/DocumentReference", s.createDocument))
	})

	return r
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   string `json:"expires_in"`
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	clientID, secret, ok := r.BasicAuth()
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if grant := r.PostFormValue("grant_type"); grant != "client_credentials" {
		jsonError(w, "unsupported_grant_type", "only client_credentials is supported")
		return
	}

	if !s.credentials.Verify(clientID, secret) {
		log.Auth.WithField("client_id", clientID).Warn("Token request with invalid credentials.")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	expiresIn := int64(s.tokenTTL.Seconds())
	signed, err := s.mintAccessToken(clientID, expiresIn)
	if err != nil {
		log.Auth.WithError(err).Error("Could not sign access token.")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	atomic.AddInt64(&s.issued, 1)
	log.Auth.WithField("client_id", clientID).Info("Access token issued.")

	// https://tools.ietf.org/html/rfc6749#section-5.1
	// expires_in is duration in seconds
	m := tokenResponse{AccessToken: signed, TokenType: "bearer", ExpiresIn: strconv.FormatInt(expiresIn, 10)}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	render.JSON(w, r, m)
}

func (s *Server) mintAccessToken(clientID string, expiresIn int64) (string, error) {
	token := jwt.New(jwt.SigningMethodRS512)
	now := time.Now()
	token.Claims = jwt.MapClaims{
		"iss": "ehrc-fixture",
		"sub": clientID,
		"exp": now.Add(time.Duration(expiresIn) * time.Second).Unix(),
		"iat": now.Unix(),
		"jti": uuid.NewRandom().String(),
	}
	return token.SignedString(s.privateKey)
}

func jsonError(w http.ResponseWriter, error string, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	body := []byte(fmt.Sprintf(`{"error":"%s","error_description":"%s"}`, error, description))
	if _, err := w.Write(body); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var keyFunc jwt.Keyfunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return &s.privateKey.PublicKey, nil
		}

		token, err := request.ParseFromRequest(r, request.OAuth2Extractor, keyFunc)
		if err != nil || !token.Valid {
			s.rw.Exception(w, http.StatusUnauthorized, responseutils.TokenErr, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// scripted serves the next queued status for the request path instead of the
// real response. A queued 2xx is consumed and falls through to the handler.
func (s *Server) scripted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, ok := s.scripts.Next(r.URL.Path)
		if !ok || (status >= 200 && status < 300) {
			next.ServeHTTP(w, r)
			return
		}

		log.Fixture.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"status": status,
		}).Info("Serving scripted response.")

		switch {
		case status == http.StatusTooManyRequests:
			s.rw.Throttled(w, responseutils.ScriptedErr, "scripted throttling response")
		case status == http.StatusNotFound:
			s.rw.NotFound(w, status, responseutils.NotFoundErr, "scripted not found response")
		case status == http.StatusUnauthorized:
			s.rw.Exception(w, status, responseutils.TokenErr, "scripted unauthorized response")
		default:
			s.rw.Exception(w, status, responseutils.ScriptedErr, "scripted failure response")
		}
	})
}

func (s *Server) searchPatients(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		s.rw.Exception(w, http.StatusBadRequest, responseutils.RequestErr, "identifier parameter is required")
		return
	}

	// identifier may be bare or system-qualified ("system|value").
	value := identifier
	if i := strings.LastIndex(identifier, "|"); i >= 0 {
		value = identifier[i+1:]
	}

	results := make([]json.RawMessage, 0, 1)
	if raw, ok := s.dataset.PatientByMRN(value); ok {
		results = append(results, raw)
	}
	s.writeSearchBundle(w, r, "Patient", results)
}

func (s *Server) searchConditions(w http.ResponseWriter, r *http.Request) {
	patientID, ok := s.patientParam(w, r)
	if !ok {
		return
	}
	status := r.URL.Query().Get("clinical-status")
	s.writeSearchBundle(w, r, "Condition", s.dataset.ConditionsFor(patientID, status))
}

func (s *Server) searchMedications(w http.ResponseWriter, r *http.Request) {
	patientID, ok := s.patientParam(w, r)
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	s.writeSearchBundle(w, r, "MedicationRequest", s.dataset.MedicationsFor(patientID, status))
}

func (s *Server) searchEncounters(w http.ResponseWriter, r *http.Request) {
	patientID, ok := s.patientParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if count := r.URL.Query().Get("_count"); count != "" {
		parsed, err := strconv.Atoi(count)
		if err != nil || parsed < 1 {
			s.rw.Exception(w, http.StatusBadRequest, responseutils.RequestErr, "invalid _count parameter")
			return
		}
		limit = parsed
	}

	newestFirst := r.URL.Query().Get("_sort") == "-date"
	s.writeSearchBundle(w, r, "Encounter", s.dataset.EncountersFor(patientID, limit, newestFirst))
}

// patientParam reads the patient search parameter, accepting both bare ids
// and "Patient/id" references.
func (s *Server) patientParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	patient := r.URL.Query().Get("patient")
	if patient == "" {
		s.rw.Exception(w, http.StatusBadRequest, responseutils.RequestErr, "patient parameter is required")
		return "", false
	}
	if i := strings.LastIndex(patient, "/"); i >= 0 {
		patient = patient[i+1:]
	}
	return patient, true
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		s.rw.Exception(w, http.StatusBadRequest, responseutils.RequestErr, "could not read request body")
		return
	}

	id, err := s.dataset.AddDocument(body)
	if err != nil {
		s.rw.Exception(w, http.StatusBadRequest, responseutils.FormatErr, err.Error())
		return
	}

	log.Fixture.WithField("document_id", id).Info("Document stored.")

	var resource map[string]interface{}
	_ = json.Unmarshal(body, &resource)
	resource["id"] = id

	w.Header().Set(constants.ContentType, constants.FHIRJsonContentType)
	w.Header().Set("Location", "/DocumentReference/"+id)
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resource); err != nil {
		log.Fixture.WithError(err).Error("Could not write create response.")
	}
}

func (s *Server) writeSearchBundle(w http.ResponseWriter, r *http.Request, resourceType string, resources []json.RawMessage) {
	total := len(resources)
	bundle := fhir.Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Links:        []fhir.BundleLink{{Relation: "self", URL: requestBase(r) + r.URL.RequestURI()}},
		Entries:      make([]fhir.BundleEntry, 0, total),
	}

	for _, raw := range resources {
		var header struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &header)
		bundle.Entries = append(bundle.Entries, fhir.BundleEntry{
			FullURL:  fmt.Sprintf("%s/%s/%s", requestBase(r), resourceType, header.ID),
			Resource: raw,
		})
	}

	w.Header().Set(constants.ContentType, constants.FHIRJsonContentType)
	if err := json.NewEncoder(w).Encode(bundle); err != nil {
		log.Fixture.WithError(err).Error("Could not write search bundle.")
	}
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	statement := s.rw.CreateCapabilityStatement(time.Now(), constants.Version, requestBase(r))
	s.rw.WriteCapabilityStatement(statement, w)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":  "ok",
		"dataset": s.dataset.Counts(),
	})
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": constants.Version})
}

type scriptRequest struct {
	Path     string `json:"path"`
	Statuses []int  `json:"statuses"`
}

func (s *Server) script(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid_script", "request body cannot be parsed")
		return
	}
	if req.Path == "" || len(req.Statuses) == 0 {
		jsonError(w, "invalid_script", "path and statuses are required")
		return
	}

	s.scripts.Push(req.Path, req.Statuses...)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"path":    req.Path,
		"pending": s.scripts.Pending(req.Path),
	})
}

func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
