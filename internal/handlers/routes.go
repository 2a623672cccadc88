package handlers

import (
	"io/fs"
	"net/http"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Routes wires every endpoint. static is served at / and ws handles /ws;
// either may be nil.
func (h *Handler) Routes(static fs.FS, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("POST /api/model/load", h.LoadModel)
	mux.HandleFunc("POST /api/webcam/start", h.StartWebcam)
	mux.HandleFunc("POST /api/webcam/stop", h.StopWebcam)
	mux.HandleFunc("GET /api/report", h.LatestReport)
	mux.HandleFunc("GET /api/diseases", h.ListDiseases)
	mux.HandleFunc("GET /api/diseases/{key}", h.GetDisease)
	mux.HandleFunc("POST /predict/image", h.PredictFromImage)
	mux.HandleFunc("POST /predict/upload", h.RepredictUpload)

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	if static != nil {
		mux.Handle("GET /", http.FileServerFS(static))
	}
	return enableCORS(mux)
}
