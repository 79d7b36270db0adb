package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"market-search/models"
	"market-search/services"
	"market-search/storage"
	"market-search/utils"
)

// RegionCatalog looks regions up by name.
type RegionCatalog interface {
	SearchRegions(ctx context.Context, keyword string) ([]models.Region, error)
}

// Handler serves the REST API over the orchestrator.
type Handler struct {
	orch       *services.Orchestrator
	catalog    RegionCatalog
	exclusions *services.ExclusionList
	insights   *services.InsightService
}

func NewHandler(orch *services.Orchestrator, catalog RegionCatalog, exclusions *services.ExclusionList, insights *services.InsightService) *Handler {
	return &Handler{orch: orch, catalog: catalog, exclusions: exclusions, insights: insights}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// --- locations & regions -----------------------------------------------------

// SearchLocations handles GET /locations?keyword=
func (h *Handler) SearchLocations(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context()).WithFields(utils.Fields{"handler": "SearchLocations"})
	keyword := r.URL.Query().Get("keyword")

	regions, err := h.catalog.SearchRegions(r.Context(), keyword)
	if err != nil {
		logger.Error("region lookup failed", err, utils.Fields{"keyword": keyword})
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"locations": regions})
}

func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"regions": h.orch.SelectedRegions()})
}

func (h *Handler) AddRegion(w http.ResponseWriter, r *http.Request) {
	var region models.Region
	if err := decodeBody(r, &region); err != nil {
		writeServiceError(w, err)
		return
	}
	if region.ID == "" {
		WriteJSONError(w, http.StatusBadRequest, "region id is required")
		return
	}
	added, err := h.orch.AddRegion(region)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if added {
		code = http.StatusCreated
	}
	RespondWithJSON(w, code, map[string]interface{}{"regions": h.orch.SelectedRegions()})
}

func (h *Handler) ReplaceRegions(w http.ResponseWriter, r *http.Request) {
	var req regionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.orch.SetSelectedRegions(req.Regions); err != nil {
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"regions": h.orch.SelectedRegions()})
}

func (h *Handler) RemoveRegion(w http.ResponseWriter, r *http.Request) {
	id := models.ID(chi.URLParam(r, "regionID"))
	if err := h.orch.RemoveRegion(id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RegionGroups(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"groups": h.orch.Groups()})
}

func (h *Handler) SetActiveRegions(w http.ResponseWriter, r *http.Request) {
	var req activeRegionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	h.orch.SetActiveRegions(req.RegionIDs)
	RespondWithJSON(w, http.StatusOK, h.orch.Snapshot())
}

// --- search ------------------------------------------------------------------

// StartSearch handles POST /search. Without regionIds every selected region
// is searched in selection order.
func (h *Handler) StartSearch(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context()).WithFields(utils.Fields{"handler": "StartSearch"})

	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	regions, err := pickRegions(h.orch.SelectedRegions(), req.RegionIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if _, err := h.orch.StartBatch(services.BatchRequest{
		Keyword:    req.Keyword,
		OnlyOnSale: req.OnlyOnSale,
		Regions:    regions,
	}); err != nil {
		logger.Warn("search rejected", utils.Fields{"reason": err.Error()})
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, h.orch.Snapshot())
}

func pickRegions(selected []models.Region, ids []models.ID) ([]models.Region, error) {
	if len(ids) == 0 {
		return selected, nil
	}
	byID := make(map[models.ID]models.Region, len(selected))
	for _, r := range selected {
		byID[r.ID] = r
	}
	out := make([]models.Region, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", services.ErrUnknownRegion, id)
		}
		out = append(out, r)
	}
	return out, nil
}

func (h *Handler) StopSearch(w http.ResponseWriter, r *http.Request) {
	h.orch.Stop()
	RespondWithJSON(w, http.StatusAccepted, h.orch.Snapshot())
}

func (h *Handler) ResumeSearch(w http.ResponseWriter, r *http.Request) {
	if _, err := h.orch.Resume(); err != nil {
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, h.orch.Snapshot())
}

// ClearSearch handles DELETE /search.
func (h *Handler) ClearSearch(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Reset(); err != nil {
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, h.orch.Snapshot())
}

func (h *Handler) SearchStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, h.orch.Snapshot())
}

// RefreshRegion handles POST /regions/{regionID}/refresh and waits for the
// fetch to finish.
func (h *Handler) RefreshRegion(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context()).WithFields(utils.Fields{"handler": "RefreshRegion"})
	id := models.ID(chi.URLParam(r, "regionID"))

	if err := h.orch.RefreshOne(r.Context(), id); err != nil {
		logger.Warn("refresh rejected", utils.Fields{"region_id": id.String(), "reason": err.Error()})
		writeServiceError(w, err)
		return
	}
	snap := h.orch.Snapshot()
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"regionId": id,
		"status":   snap.RegionStatus[id],
		"notice":   snap.Notice,
	})
}

// RefreshRegions handles POST /regions/refresh for explicit ids or a group
// name.
func (h *Handler) RefreshRegions(w http.ResponseWriter, r *http.Request) {
	var req refreshManyRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	ids := req.RegionIDs
	if len(ids) == 0 && req.Group != "" {
		for _, g := range h.orch.Groups() {
			if g.Name == req.Group {
				for _, region := range g.Regions {
					ids = append(ids, region.ID)
				}
				break
			}
		}
		if len(ids) == 0 {
			WriteJSONError(w, http.StatusNotFound, "unknown region group")
			return
		}
	}

	if _, err := h.orch.RefreshMany(ids); err != nil {
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{"regionIds": ids})
}

// --- listings ----------------------------------------------------------------

// viewFromRequest starts from the saved options and applies query overrides.
func (h *Handler) viewFromRequest(r *http.Request) (services.ViewInput, error) {
	in := h.orch.ViewInput()
	opts, err := parseViewOptions(r, in.Options)
	if err != nil {
		return in, err
	}
	in.Options = opts
	in.Exclusions = h.exclusions.List()
	return in, nil
}

func parseViewOptions(r *http.Request, base models.ViewOptions) (models.ViewOptions, error) {
	q := r.URL.Query()
	opts := base

	if q.Has("statuses") {
		opts.Statuses = []models.StatusClass{}
		for _, s := range splitList(q.Get("statuses")) {
			opts.Statuses = append(opts.Statuses, models.StatusClass(s))
		}
	}
	if q.Has("include") {
		opts.IncludeWords = splitList(q.Get("include"))
	}
	if q.Has("exclude") {
		opts.ExcludeWords = splitList(q.Get("exclude"))
	}
	if q.Has("minPrice") {
		opts.Price.Min = q.Get("minPrice")
	}
	if q.Has("maxPrice") {
		opts.Price.Max = q.Get("maxPrice")
	}
	if v := q.Get("exclusionMode"); v != "" {
		opts.ExclusionMode = models.ExclusionMode(v)
	}
	if v := q.Get("sort"); v != "" {
		opts.Sort = models.SortKey(v)
	}
	if v := q.Get("group"); v != "" {
		opts.Group = models.GroupKey(v)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return opts, nil
}

// Listings handles GET /listings.
func (h *Handler) Listings(w http.ResponseWriter, r *http.Request) {
	in, err := h.viewFromRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view := services.ApplyView(in)
	RespondWithJSON(w, http.StatusOK, listingsResponse{
		View:        view,
		Summary:     h.insights.Generate(in, view),
		Options:     in.Options,
		StaleFilter: h.orch.NeedsBroaderSearch(in.Options.Statuses),
		Notice:      h.orch.Snapshot().Notice,
	})
}

// SaveViewOptions handles PUT /listings/options.
func (h *Handler) SaveViewOptions(w http.ResponseWriter, r *http.Request) {
	opts := models.DefaultViewOptions()
	if err := decodeBody(r, &opts); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := opts.Validate(); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.orch.SetViewOptions(opts)
	RespondWithJSON(w, http.StatusOK, opts)
}

// ExportCSV handles GET /listings/export.csv.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context()).WithFields(utils.Fields{"handler": "ExportCSV"})
	in, err := h.viewFromRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view := services.ApplyView(in)
	rows := make([]*models.Listing, 0, len(view.Listings))
	for _, it := range view.Listings {
		rows = append(rows, it.Listing)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="listings.csv"`)
	cw, err := storage.NewCSVWriter(w)
	if err != nil {
		logger.Error("csv export failed", err, nil)
		return
	}
	if err := cw.Write(rows); err != nil {
		logger.Error("csv export failed", err, utils.Fields{"rows": len(rows)})
	}
	_ = cw.Close()
}

// --- exclusions --------------------------------------------------------------

func (h *Handler) ListExclusions(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{"exclusions": h.exclusions.List()})
}

func (h *Handler) AddExclusion(w http.ResponseWriter, r *http.Request) {
	var rec models.ExclusionRecord
	if err := decodeBody(r, &rec); err != nil {
		writeServiceError(w, err)
		return
	}
	added, err := h.exclusions.Add(rec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if added {
		code = http.StatusCreated
	}
	RespondWithJSON(w, code, map[string]interface{}{"exclusions": h.exclusions.List()})
}

func (h *Handler) RemoveExclusion(w http.ResponseWriter, r *http.Request) {
	link := strings.TrimSpace(r.URL.Query().Get("link"))
	if link == "" {
		WriteJSONError(w, http.StatusBadRequest, "link is required")
		return
	}
	removed, err := h.exclusions.Remove(link)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !removed {
		WriteJSONError(w, http.StatusNotFound, "listing is not excluded")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
