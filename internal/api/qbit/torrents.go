package qbit

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/vmunix/autostrm/internal/jobs"
)

// stateNames maps job states onto qBittorrent torrent states.
var stateNames = map[jobs.State]string{
	jobs.StateQueued:      "queuedDL",
	jobs.StateDownloading: "downloading",
	jobs.StateProcessing:  "stalledDL",
	jobs.StateReady:       "uploading",
	jobs.StateError:       "error",
	jobs.StatePaused:      "pausedDL",
	jobs.StateDone:        "pausedUP",
	jobs.StateDeleted:     "missingFiles",
}

// QBState returns the qBittorrent state name for a job state.
func QBState(s jobs.State) string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// filterStates maps the torrents/info filter parameter onto job states.
// A nil entry matches every state.
var filterStates = map[string][]jobs.State{
	"all":         nil,
	"downloading": {jobs.StateQueued, jobs.StateDownloading, jobs.StateProcessing},
	"seeding":     {jobs.StateReady},
	"completed":   {jobs.StateReady, jobs.StateDone},
	"paused":      {jobs.StatePaused, jobs.StateDone},
	"stopped":     {jobs.StatePaused, jobs.StateDone},
	"active":      {jobs.StateDownloading, jobs.StateProcessing, jobs.StateReady},
	"inactive":    {jobs.StateQueued, jobs.StatePaused, jobs.StateDone, jobs.StateError, jobs.StateDeleted},
	"resumed":     {jobs.StateQueued, jobs.StateDownloading, jobs.StateProcessing, jobs.StateReady},
	"running":     {jobs.StateQueued, jobs.StateDownloading, jobs.StateProcessing, jobs.StateReady},
	"stalled":     {jobs.StateProcessing},
	"errored":     {jobs.StateError, jobs.StateDeleted},
}

// torrentInfo is one entry of torrents/info.
type torrentInfo struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Progress    float64 `json:"progress"`
	State       string  `json:"state"`
	AddedOn     int64   `json:"added_on"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
	Category    string  `json:"category"`
	Tags        string  `json:"tags"`
	ETA         int64   `json:"eta"`
	DLSpeed     int64   `json:"dlspeed"`
	UPSpeed     int64   `json:"upspeed"`
	Size        int64   `json:"size"`
	TotalSize   int64   `json:"total_size"`
	Downloaded  int64   `json:"downloaded"`
	AmountLeft  int64   `json:"amount_left"`
	Ratio       float64 `json:"ratio"`
}

type categoryInfo struct {
	Name     string `json:"name"`
	SavePath string `json:"savePath"`
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categoryInfos(r)
	if err != nil {
		s.log.Error("list categories failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) categoryInfos(r *http.Request) (map[string]categoryInfo, error) {
	cats, err := s.jobs.Categories(r.Context())
	if err != nil {
		return nil, err
	}
	out := make(map[string]categoryInfo, len(cats))
	for _, name := range cats.Names() {
		save := cats[name].SavePath
		if save == "" {
			save = s.roots.Root(r.Context(), name)
		}
		out[name] = categoryInfo{Name: name, SavePath: save}
	}
	return out, nil
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("category"))
	if name == "" {
		writeText(w, http.StatusBadRequest, "Missing category")
		return
	}
	save := strings.TrimSpace(r.FormValue("savePath"))
	if save == "" {
		save = s.roots.Root(r.Context(), name)
	}
	if err := s.jobs.SetCategory(r.Context(), name, save); err != nil {
		s.log.Error("create category failed", "category", name, "error", err)
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}
	writeText(w, http.StatusOK, "Ok.")
}

func (s *Server) addTorrents(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeText(w, http.StatusBadRequest, "Invalid form")
		return
	}
	explicit := strings.TrimSpace(r.FormValue("category"))

	var reqs []jobs.CreateRequest
	for _, line := range strings.Split(r.FormValue("urls"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := jobs.MagnetDisplayName(line)
		reqs = append(reqs, jobs.CreateRequest{
			Name:     name,
			Category: s.guessCategory(explicit, name),
			Kind:     jobs.InputMagnet,
			Magnet:   line,
		})
	}

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["torrents"] {
			data, err := readUpload(fh)
			if err != nil {
				writeText(w, http.StatusBadRequest, "Invalid torrent file")
				return
			}
			name := fh.Filename
			if name == "" {
				name = "torrent.torrent"
			}
			reqs = append(reqs, jobs.CreateRequest{
				Name:     name,
				Category: s.guessCategory(explicit, name),
				Kind:     jobs.InputTorrent,
				Torrent:  data,
			})
		}
	}

	if len(reqs) == 0 {
		writeText(w, http.StatusBadRequest, "No torrents to add")
		return
	}

	failed := 0
	for _, req := range reqs {
		if _, err := s.jobs.CreateJob(r.Context(), req); err != nil {
			s.log.Error("add torrent failed", "name", req.Name, "error", err)
			failed++
		}
	}
	if failed > 0 {
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}
	writeText(w, http.StatusOK, "Ok.")
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (s *Server) guessCategory(explicit, name string) string {
	return jobs.GuessCategory(explicit, name, s.cfg.TVCategory, s.cfg.MoviesCategory)
}

func (s *Server) listTorrents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := jobs.Filter{Category: q.Get("category")}
	if states, ok := filterStates[q.Get("filter")]; ok {
		f.States = states
	}

	list, err := s.jobs.ListJobs(r.Context(), f)
	if err != nil {
		s.log.Error("list torrents failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}

	wanted := splitHashes(q.Get("hashes"))
	out := make([]torrentInfo, 0, len(list))
	for _, j := range list {
		if wanted != nil && !slices.Contains(wanted, j.ID) {
			continue
		}
		out = append(out, s.info(r, j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) info(r *http.Request, j *jobs.Job) torrentInfo {
	save := s.roots.Root(r.Context(), j.Category)
	downloaded := int64(j.Progress * float64(j.Size))
	content := save
	if len(j.Files) > 0 {
		content = j.Files[0]
	}
	return torrentInfo{
		Hash:        j.ID,
		Name:        j.Name,
		Progress:    j.Progress,
		State:       QBState(j.State),
		AddedOn:     j.AddedOn,
		SavePath:    save,
		ContentPath: content,
		Category:    j.Category,
		ETA:         j.ETA,
		DLSpeed:     j.DownloadSpeed,
		UPSpeed:     j.UploadSpeed,
		Size:        j.Size,
		TotalSize:   j.Size,
		Downloaded:  downloaded,
		AmountLeft:  j.Size - downloaded,
	}
}

// splitHashes parses a "h1|h2" list. "all" and "" yield nil, meaning every job.
func splitHashes(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" || v == "all" {
		return nil
	}
	var out []string
	for _, h := range strings.Split(v, "|") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// targets resolves the hashes form field to job ids.
func (s *Server) targets(r *http.Request) ([]string, error) {
	ids := splitHashes(r.FormValue("hashes"))
	if ids != nil {
		return ids, nil
	}
	if strings.TrimSpace(r.FormValue("hashes")) != "all" {
		return nil, nil
	}
	list, err := s.jobs.ListJobs(r.Context(), jobs.Filter{})
	if err != nil {
		return nil, err
	}
	for _, j := range list {
		ids = append(ids, j.ID)
	}
	return ids, nil
}

func (s *Server) deleteTorrents(w http.ResponseWriter, r *http.Request) {
	ids, err := s.targets(r)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}
	purge := strings.EqualFold(r.FormValue("deleteFiles"), "true")
	for _, id := range ids {
		if err := s.jobs.DeleteJob(r.Context(), id, purge); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			s.log.Error("delete failed", "job", id, "error", err)
		}
	}
	writeText(w, http.StatusOK, "Ok.")
}

func (s *Server) pauseTorrents(w http.ResponseWriter, r *http.Request) {
	s.applyAll(w, r, "pause", s.jobs.PauseJob)
}

func (s *Server) resumeTorrents(w http.ResponseWriter, r *http.Request) {
	s.applyAll(w, r, "resume", s.jobs.ResumeJob)
}

func (s *Server) applyAll(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id string) error) {
	ids, err := s.targets(r)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}
	for _, id := range ids {
		err := fn(r.Context(), id)
		switch {
		case err == nil:
		case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrInvalidTransition):
			s.log.Debug(op+" skipped", "job", id, "error", err)
		default:
			s.log.Error(op+" failed", "job", id, "error", err)
		}
	}
	writeText(w, http.StatusOK, "Ok.")
}

type mainDataTorrent struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	State    string  `json:"state"`
	Category string  `json:"category"`
	Size     int64   `json:"size"`
	ETA      int64   `json:"eta"`
	DLSpeed  int64   `json:"dlspeed"`
}

func (s *Server) mainData(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.ListJobs(r.Context(), jobs.Filter{})
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}
	cats, err := s.categoryInfos(r)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Fails.")
		return
	}

	torrents := make(map[string]mainDataTorrent, len(list))
	for _, j := range list {
		torrents[j.ID] = mainDataTorrent{
			Name:     j.Name,
			Progress: j.Progress,
			State:    QBState(j.State),
			Category: j.Category,
			Size:     j.Size,
			ETA:      j.ETA,
			DLSpeed:  j.DownloadSpeed,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rid":         time.Now().Unix(),
		"full_update": true,
		"torrents":    torrents,
		"categories":  cats,
		"server_state": map[string]any{
			"connection_status": "connected",
			"dl_info_speed":     0,
			"up_info_speed":     0,
		},
	})
}
