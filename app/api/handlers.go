package api

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/lysyi3m/podcast-analyzer/app/analysis"
	"github.com/lysyi3m/podcast-analyzer/app/database"
	"github.com/lysyi3m/podcast-analyzer/app/tasks"
)

const (
	excerptLength    = 280
	excerptCacheSize = 1024
)

var stripPolicy = bluemonday.StrictPolicy()

func NewHandler(pipeline *tasks.Pipeline, episodes database.EpisodeRepository,
	people database.PersonRepository, groups database.GroupRepository,
	artUpdates database.ArtUpdateRepository, scheduler tasks.Enqueuer) *Handler {
	excerpts, _ := lru.New[string, string](excerptCacheSize)
	return &Handler{
		podcasts:   pipeline.Podcasts,
		episodes:   episodes,
		people:     people,
		groups:     groups,
		artUpdates: artUpdates,
		pipeline:   pipeline,
		scheduler:  scheduler,
		excerpts:   excerpts,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if podcasts, err := h.podcasts.ListPodcasts(c.Request.Context()); err == nil {
		health["podcasts"] = len(podcasts)
	}

	if h.pipeline.Seeds != nil {
		health["loaded_seeds"] = h.pipeline.Seeds.Count()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListPodcasts(c *gin.Context) {
	podcasts, err := h.podcasts.ListPodcasts(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_podcasts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"podcasts": podcasts,
		"total":    len(podcasts),
	})
}

func (h *Handler) CreatePodcast(c *gin.Context) {
	var req createPodcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.RSSFeed
	}

	podcast, err := h.podcasts.CreatePodcast(c.Request.Context(), title, req.RSSFeed)
	if errors.Is(err, database.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Podcast already registered", "rss_feed": req.RSSFeed})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "create_podcast", "rss_feed", req.RSSFeed, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	task := tasks.NewRefreshFeedTask(podcast.ID, false, h.pipeline, h.scheduler)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue initial refresh", "podcast", podcast.ID, "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"podcast": podcast,
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) GetPodcast(c *gin.Context) {
	podcast, ok := h.loadPodcast(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	categories, err := h.podcasts.GetCategories(ctx, podcast.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_categories", "podcast", podcast.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats, err := h.podcasts.GetStats(ctx, podcast.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "podcast", podcast.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, podcastDetail{
		Podcast:      podcast,
		LanguageName: languageName(podcast.Language),
		Categories:   categories,
		Stats:        stats,
	})
}

func (h *Handler) DeletePodcast(c *gin.Context) {
	id := c.Param("id")
	err := h.podcasts.DeletePodcast(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Podcast not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "delete_podcast", "podcast", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) RefreshPodcast(c *gin.Context) {
	podcast, ok := h.loadPodcast(c)
	if !ok {
		return
	}

	updateExisting, err := boolQuery(c, "update_existing", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update_existing parameter"})
		return
	}

	task := tasks.NewRefreshFeedTask(podcast.ID, updateExisting, h.pipeline, h.scheduler)
	h.enqueue(c, podcast, task)
}

func (h *Handler) AnalyzePodcast(c *gin.Context) {
	podcast, ok := h.loadPodcast(c)
	if !ok {
		return
	}

	opts := analysis.DefaultOptions()
	if raw := c.Query("episode_limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid episode_limit parameter"})
			return
		}
		opts.EpisodeLimit = limit
	}
	fullOnly, err := boolQuery(c, "full_episodes_only", opts.FullEpisodesOnly)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid full_episodes_only parameter"})
		return
	}
	opts.FullEpisodesOnly = fullOnly

	task := tasks.NewAnalyzeFeedTask(podcast.ID, opts, h.pipeline)
	h.enqueue(c, podcast, task)
}

func (h *Handler) ListEpisodes(c *gin.Context) {
	podcast, ok := h.loadPodcast(c)
	if !ok {
		return
	}

	filter := database.EpisodeFilter{PodcastID: podcast.ID}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		filter.Limit = limit
	}

	episodes, err := h.episodes.ListEpisodes(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Database error", "operation", "list_episodes", "podcast", podcast.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	summaries := make([]episodeSummary, 0, len(episodes))
	for i := range episodes {
		ep := &episodes[i]
		summaries = append(summaries, episodeSummary{
			ID:                 ep.ID,
			GUID:               ep.GUID,
			Title:              ep.Title,
			EpType:             ep.EpType,
			EpNum:              ep.EpNum,
			ReleaseDatetime:    ep.ReleaseDatetime,
			DownloadURL:        ep.DownloadURL,
			ItunesDuration:     ep.ItunesDuration,
			CWPresent:          ep.CWPresent,
			TranscriptDetected: ep.TranscriptDetected,
			NotesExcerpt:       h.notesExcerpt(ep),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"episodes": summaries,
		"total":    len(summaries),
	})
}

func (h *Handler) ListArtUpdates(c *gin.Context) {
	podcast, ok := h.loadPodcast(c)
	if !ok {
		return
	}

	updates, err := h.artUpdates.ListArtUpdates(c.Request.Context(), podcast.ID)
	if err != nil {
		slog.Error("Database error", "operation", "list_art_updates", "podcast", podcast.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"art_updates": updates,
		"total":       len(updates),
	})
}

func (h *Handler) ListPeople(c *gin.Context) {
	people, err := h.people.ListPeople(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_people", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"people": people,
		"total":  len(people),
	})
}

// GetPerson follows merge redirects; the requested id is reported in
// redirected_from when it differs from the live record.
func (h *Handler) GetPerson(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	person, err := h.people.ResolvePerson(ctx, id)
	if err != nil {
		h.personError(c, "resolve_person", id, err)
		return
	}

	appearances, err := h.people.PersonAppearances(ctx, person.ID)
	if err != nil {
		slog.Error("Database error", "operation", "person_appearances", "person", person.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	detail := personDetail{Person: person, Appearances: appearances}
	if person.ID != id {
		detail.RedirectedFrom = &id
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) MergePerson(c *gin.Context) {
	id := c.Param("id")

	var req mergePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.people.MergePerson(c.Request.Context(), id, req.DestinationID); err != nil {
		h.personError(c, "merge_person", id, err)
		return
	}

	slog.Info("Person merged", "person", id, "into", req.DestinationID)

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"person_id":      id,
		"destination_id": req.DestinationID,
	})
}

func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.groups.ListGroups(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_groups", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": groups,
		"total":  len(groups),
	})
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		slog.Error("Database error", "operation", "create_group", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, group)
}

func (h *Handler) GetGroup(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	detail := groupDetail{AnalysisGroup: group}
	var err error
	if detail.Feeds, err = h.groups.CountGroupFeeds(ctx, group.ID); err == nil {
		if detail.Seasons, err = h.groups.CountGroupSeasons(ctx, group.ID); err == nil {
			detail.Episodes, err = h.groups.CountGroupEpisodes(ctx, group.ID)
		}
	}
	if err != nil {
		slog.Error("Database error", "operation", "count_group", "group", group.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) AddGroupMembers(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}

	var req groupMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	err := h.groups.AddGroupPodcasts(ctx, group.ID, req.PodcastIDs)
	if err == nil {
		err = h.groups.AddGroupSeasons(ctx, group.ID, req.SeasonIDs)
	}
	if err == nil {
		err = h.groups.AddGroupEpisodes(ctx, group.ID, req.EpisodeIDs)
	}
	if err != nil {
		slog.Error("Database error", "operation", "add_group_members", "group", group.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"group_id": group.ID,
		"added": gin.H{
			"podcasts": len(req.PodcastIDs),
			"seasons":  len(req.SeasonIDs),
			"episodes": len(req.EpisodeIDs),
		},
	})
}

func (h *Handler) loadPodcast(c *gin.Context) (*database.Podcast, bool) {
	id := c.Param("id")
	podcast, err := h.podcasts.GetPodcast(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_podcast", "podcast", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if podcast == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Podcast not found"})
		return nil, false
	}
	return podcast, true
}

func (h *Handler) loadGroup(c *gin.Context) (*database.AnalysisGroup, bool) {
	id := c.Param("id")
	group, err := h.groups.GetGroup(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_group", "group", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if group == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return nil, false
	}
	return group, true
}

func (h *Handler) enqueue(c *gin.Context, podcast *database.Podcast, task tasks.TaskInterface) {
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing task", "type", task.GetType(), "podcast", podcast.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"podcast": gin.H{"id": podcast.ID, "title": podcast.Title},
		"task":    gin.H{"id": task.GetID(), "type": task.GetType()},
	})
}

func (h *Handler) personError(c *gin.Context, operation, id string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
	case errors.Is(err, database.ErrSelfMerge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrAlreadyMerged), errors.Is(err, database.ErrMergeCycle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("Database error", "operation", operation, "person", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}

// notesExcerpt strips markup from show notes and truncates the text. Results
// are cached per episode revision.
func (h *Handler) notesExcerpt(ep *database.Episode) string {
	if ep.ShowNotes == nil {
		return ""
	}

	key := fmt.Sprintf("%s:%d", ep.ID, ep.UpdatedAt.UnixNano())
	if excerpt, ok := h.excerpts.Get(key); ok {
		return excerpt
	}

	text := html.UnescapeString(stripPolicy.Sanitize(*ep.ShowNotes))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > excerptLength {
		text = strings.TrimSpace(string([]rune(text)[:excerptLength])) + "…"
	}

	h.excerpts.Add(key, text)
	return text
}

func languageName(code *string) *string {
	if code == nil {
		return nil
	}
	tag, err := language.Parse(*code)
	if err != nil {
		return nil
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return nil
	}
	return &name
}

func boolQuery(c *gin.Context, key string, fallback bool) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(raw)
}
