package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered atomic.Value
	registered.Store("")
	router := mux.NewRouter()
	router.HandleFunc("/subjects/{subject}/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		if registered.Load().(string) == "" {
			http.Error(w, `{"error_code":40401}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":7}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/subjects/{subject}/versions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, registryContentType, r.Header.Get("Content-Type"))
		var body struct {
			SchemaType string `json:"schemaType"`
			Schema     string `json:"schema"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "JSON", body.SchemaType)
		registered.Store(mux.Vars(r)["subject"])
		_, _ = w.Write([]byte(`{"id":7}`))
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(router)
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "savings_activity_events-value", activityRecordedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, "savings_activity_events-value", registered.Load())

	id, err = client.EnsureSchema(context.Background(), "savings_activity_events-value", activityRecordedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "registry down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "status 503")
	require.NotErrorIs(t, err, ErrSubjectNotFound)
}
