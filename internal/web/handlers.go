package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"musicman/internal/task"
)

type TrimRequest struct {
	Path  string  `json:"path"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type DownloadRequest struct {
	// URLs is one or more URLs separated by commas.
	URLs string `json:"urls"`
}

type NormalizeRequest struct {
	// Files restricts the batch to the given paths; empty means the
	// whole library.
	Files []string `json:"files"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Kind        JobKind   `json:"kind"`
	Target      string    `json:"target"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Skipped     int       `json:"skipped,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	songs := s.librarySongs()
	if songs == nil {
		s.RefreshLibrary()
		songs = s.librarySongs()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(songs)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job := s.jobMgr.CreateJob(KindScan, s.config.LibraryDir)
	s.logger.Info("Created scan job %s for %s", job.ID, s.config.LibraryDir)

	go s.processScanJob(job)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.jobToResponse(job))
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req NormalizeRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	files := req.Files
	if len(files) == 0 {
		var err error
		files, err = s.scanner.ListFiles()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	job := s.jobMgr.CreateJob(KindNormalize, s.config.LibraryDir)
	s.logger.Info("Created normalize job %s (%d files)", job.ID, len(files))

	go s.processNormalizeJob(job, files)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.jobToResponse(job))
}

func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TrimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	job := s.jobMgr.CreateJob(KindTrim, req.Path)
	s.logger.Info("Created trim job %s for %s [%.3f-%.3f]", job.ID, req.Path, req.Start, req.End)

	go s.processTrimJob(job, req)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.jobToResponse(job)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	// Extract job ID from path: /api/jobs/{id} or /api/jobs/{id}/cancel
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	// Handle GET /api/jobs/{id}
	if r.Method == http.MethodGet && len(parts) == 1 {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.jobToResponse(job))
		return
	}

	// Handle POST /api/jobs/{id}/cancel
	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "cancel" {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		// Cooperative: the worker observes the flag and finishes the
		// in-flight item before stopping.
		if job.Cancel != nil {
			job.Cancel()
		}

		s.jobMgr.UpdateJob(jobID, func(j *Job) {
			j.Status = StatusCancelled
		})

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
		return
	}

	http.Error(w, "Invalid request", http.StatusBadRequest)
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.queue.Items())

	case http.MethodPost:
		var req DownloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		urls := strings.Split(req.URLs, ",")
		s.queue.Add(urls...)
		s.logger.Info("Queued download request: %s", req.URLs)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(s.queue.Items())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDownloadAction(w http.ResponseWriter, r *http.Request) {
	// POST /api/downloads/{id}/cancel
	path := strings.TrimPrefix(r.URL.Path, "/api/downloads/")
	parts := strings.Split(path, "/")
	if r.Method != http.MethodPost || len(parts) != 2 || parts[1] != "cancel" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !s.queue.Cancel(parts[0]) {
		http.Error(w, "download not found or already finished", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
}

// processScanJob runs a library scan under a task runner, forwarding
// progress into the job manager (and from there to websocket clients).
func (s *Server) processScanJob(job *Job) {
	runner, collect, err := s.scanner.ScanTask()
	if err != nil {
		s.failJob(job.ID, err.Error())
		return
	}

	s.startTaskJob(job, runner)

	runner.Wait()
	s.setLibrarySongs(collect())
	s.finishTaskJob(job.ID, runner)
}

func (s *Server) processNormalizeJob(job *Job, files []string) {
	runner := s.proc.NormalizeTask(s.ctx, files)
	s.startTaskJob(job, runner)

	runner.Wait()
	s.finishTaskJob(job.ID, runner)

	// Normalization rewrites files; refresh the cached listing.
	s.RefreshLibrary()
}

func (s *Server) processTrimJob(job *Job, req TrimRequest) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Status = StatusRunning
		j.Total = 1
		j.Cancel = cancel
	})

	err := s.proc.Trim(ctx, req.Path, req.Start, req.End)
	switch {
	case ctx.Err() != nil:
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			j.Status = StatusCancelled
		})
	case err != nil:
		s.failJob(job.ID, err.Error())
	default:
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			j.Status = StatusCompleted
			j.Progress = 1
		})
		s.RefreshLibrary()
	}
}

// startTaskJob marks the job running and starts the runner with an
// observer that mirrors progress into the job.
func (s *Server) startTaskJob(job *Job, runner *task.Runner[string]) {
	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Status = StatusRunning
		j.Total = runner.Total()
		j.Cancel = func() { runner.Cancel() }
	})

	runner.Start(task.Observer{
		OnProgress: func(completed, total int) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				j.Progress = completed
				j.Skipped = runner.Skipped()
			})
		},
	})
}

func (s *Server) finishTaskJob(id string, runner *task.Runner[string]) {
	status := StatusCompleted
	errMsg := ""
	switch {
	case runner.Err() != nil:
		status = StatusFailed
		errMsg = runner.Err().Error()
	case runner.Cancelled():
		status = StatusCancelled
	}

	s.jobMgr.UpdateJob(id, func(j *Job) {
		if j.Status == StatusRunning || j.Status == StatusPending {
			j.Status = status
			j.Error = errMsg
		}
		j.Skipped = runner.Skipped()
	})
}

func (s *Server) failJob(id, msg string) {
	s.logger.Error("Job %s failed: %s", id, msg)
	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = msg
	})
}

func (s *Server) jobToResponse(job *Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		Kind:      job.Kind,
		Target:    job.Target,
		Status:    job.Status,
		Progress:  job.Progress,
		Total:     job.Total,
		Skipped:   job.Skipped,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format("2006-01-02 15:04:05")
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format("2006-01-02 15:04:05")
		resp.CompletedAt = &completed
	}

	return resp
}
