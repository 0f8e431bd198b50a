package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"

	"github.com/sqlassist/sqlassist-go/internal/assistant"
	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/exporter"
	"github.com/sqlassist/sqlassist-go/internal/importer"
	"github.com/sqlassist/sqlassist-go/internal/query"
	"github.com/sqlassist/sqlassist-go/internal/remote"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns,omitempty"`
	SQL     string   `json:"sql,omitempty"`
}

type columnInfo struct {
	Name     string `json:"name"`
	Original string `json:"original"`
	Type     string `json:"type"`
}

type schemaResponse struct {
	Table    string                 `json:"table"`
	RowCount int                    `json:"row_count"`
	Columns  []columnInfo           `json:"columns"`
	Mapping  database.ColumnMapping `json:"mapping"`
}

func newSchemaResponse(rel *database.Relation) schemaResponse {
	cols := make([]columnInfo, len(rel.Columns))
	for i, c := range rel.Columns {
		cols[i] = columnInfo{Name: c.Name, Original: c.Raw, Type: c.Type.String()}
	}
	return schemaResponse{
		Table:    rel.Name,
		RowCount: rel.RowCount,
		Columns:  cols,
		Mapping:  rel.Mapping(),
	}
}

type datasetRequest struct {
	URL string `json:"url"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type askRequest struct {
	Question string `json:"question"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "bad_request"})
}

// errorStatus maps an assistant error onto a status code and body.
func errorStatus(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error(), Kind: "internal"}

	var loadErr *importer.LoadError
	var repairErr *query.RepairError
	var execErr *query.ExecutionError
	var trErr *assistant.TranslationError
	switch {
	case errors.As(err, &loadErr):
		resp.Kind = "load_error"
		return http.StatusBadRequest, resp
	case errors.As(err, &repairErr):
		resp.Kind = repairErr.Kind().String()
		resp.Columns = repairErr.Columns
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &execErr):
		resp.Kind = execErr.Kind().String()
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, assistant.ErrNoDataset):
		resp.Kind = "no_dataset"
		return http.StatusConflict, resp
	case errors.Is(err, assistant.ErrNoTranslator):
		resp.Kind = "no_translator"
		return http.StatusNotImplemented, resp
	case errors.As(err, &trErr):
		resp.Kind = "translation_failed"
		return http.StatusBadGateway, resp
	}
	return http.StatusInternalServerError, resp
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, sql string) {
	status, resp := errorStatus(err)
	resp.SQL = sql
	if s.cfg.Debug {
		log.Printf("[HTTP] %s %s failed (%d): %v id=%s", r.Method, r.URL.Path, status, err, RequestID(r.Context()))
	}
	writeError(w, status, resp)
}

// writeResult answers with JSON, or with a CSV download for ?format=csv.
func writeResult(w http.ResponseWriter, r *http.Request, v interface{}, result *query.Result) {
	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, v)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="result.csv"`)
	if err := exporter.Write(w, result, ','); err != nil {
		log.Printf("[HTTP] write csv: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"dataset":    s.asst.Relation() != nil,
		"translator": s.asst.HasTranslator(),
	})
}

// handleDataset loads a dataset from a multipart upload (field "file") or
// from a JSON body {"url": ...} naming an http(s) or s3 location.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var rel *database.Relation
	var err error
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			badRequest(w, fmt.Sprintf("read upload: %v", ferr))
			return
		}
		defer file.Close()
		rel, err = s.asst.LoadReader(r.Context(), file, header.Filename)
	case "application/json", "":
		var req datasetRequest
		if derr := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); derr != nil {
			badRequest(w, fmt.Sprintf("invalid JSON body: %v", derr))
			return
		}
		if !remote.IsRemote(req.URL) {
			badRequest(w, "url must be an http, https or s3 location")
			return
		}
		rel, err = s.asst.Load(r.Context(), req.URL)
	default:
		badRequest(w, fmt.Sprintf("unsupported content type %q", mediaType))
		return
	}
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, newSchemaResponse(rel))
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	rel := s.asst.Relation()
	if rel == nil {
		s.fail(w, r, assistant.ErrNoDataset, "")
		return
	}
	writeJSON(w, http.StatusOK, newSchemaResponse(rel))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.SQL == "" {
		badRequest(w, "sql is required")
		return
	}

	result, err := s.asst.Query(r.Context(), req.SQL)
	if err != nil {
		s.fail(w, r, err, req.SQL)
		return
	}
	writeResult(w, r, result, result)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.Question == "" {
		badRequest(w, "question is required")
		return
	}

	answer, err := s.asst.Ask(r.Context(), req.Question)
	if err != nil {
		sql := ""
		if answer != nil {
			sql = answer.SQL
		}
		s.fail(w, r, err, sql)
		return
	}
	writeResult(w, r, answer, answer.Result)
}
