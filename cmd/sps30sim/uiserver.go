package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fatih/color"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"sps30/sim"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

/*
newUIRouter serves
GET /status   counters and latest measurement
GET /model    current model
PUT /model    partial update, YAML or JSON body. Saved to modelFile if set
*/
func newUIRouter(sensor *sim.Sensor, modelFile string) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sensor.Status())
	}).Methods(http.MethodGet)

	r.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sensor.Model())
	}).Methods(http.MethodGet)

	r.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		body, errRead := io.ReadAll(r.Body)
		if errRead != nil {
			http.Error(w, fmt.Sprintf("Reading request failed %v", errRead), http.StatusBadRequest)
			return
		}
		mod := sensor.Model()
		if errParse := yaml.Unmarshal(body, &mod); errParse != nil {
			http.Error(w, fmt.Sprintf("Invalid payload %v", errParse), http.StatusBadRequest)
			return
		}
		sensor.SetModel(mod)
		color.Magenta("model updated %#v", mod)

		if modelFile != "" {
			if errSave := sim.SaveModel(modelFile, mod); errSave != nil {
				http.Error(w, fmt.Sprintf("Saving model failed %v", errSave), http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, mod)
	}).Methods(http.MethodPut, http.MethodPost)

	return r
}

func runUIServer(addr string, crt string, key string, handler http.Handler) error {
	color.HiGreen("Serving UI on %v", addr)
	if crt != "" && key != "" {
		return http.ListenAndServeTLS(addr, crt, key, handler)
	}
	return http.ListenAndServe(addr, handler)
}
