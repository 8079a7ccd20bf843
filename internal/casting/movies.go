package casting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// movieRequest は映画の作成・更新リクエストのJSON構造。
// 部分更新ではゼロ値のフィールドは「未指定」として扱われる。
type movieRequest struct {
	// Title は映画のタイトル。
	Title string `json:"title"`
	// ReleaseDate は公開日（YYYY-MM-DD）。
	ReleaseDate string `json:"release_date"`
	// Actors は関連付ける俳優IDのリスト。
	Actors []int64 `json:"actors"`
}

// actorSummary は映画レスポンスに入れ子で含まれる俳優の要約。
// 相互の無限展開を防ぐため、俳優側の関連映画は含まない。
type actorSummary struct {
	// ID は俳優の一意識別子。
	ID int64 `json:"id"`
	// Name は俳優の氏名。
	Name string `json:"name"`
	// Age は俳優の年齢。
	Age int64 `json:"age"`
	// Gender は俳優の性別。
	Gender string `json:"gender"`
}

// nestedActors は映画に関連付けられた俳優の要約リストと件数。
type nestedActors struct {
	// Actors は俳優の要約リスト。
	Actors []actorSummary `json:"actors"`
	// TotalActors は関連付けられた俳優の件数。
	TotalActors int `json:"total_actors"`
}

// movieResponse は映画のJSONレスポンス構造。
type movieResponse struct {
	// ID は映画の一意識別子。
	ID int64 `json:"id"`
	// Title は映画のタイトル。
	Title string `json:"title"`
	// ReleaseDate は公開日。
	ReleaseDate string `json:"release_date"`
	// Actors は関連付けられた俳優の要約。
	Actors nestedActors `json:"actors"`
}

// formatMovie は映画とその関連俳優をレスポンス構造に変換する。
func (s *Server) formatMovie(ctx context.Context, m Movie) (movieResponse, error) {
	actors, err := s.store.ActorsForMovie(ctx, m.ID)
	if err != nil {
		return movieResponse{}, err
	}

	summaries := make([]actorSummary, 0, len(actors))
	for _, a := range actors {
		summaries = append(summaries, actorSummary{
			ID:     a.ID,
			Name:   a.Name,
			Age:    a.Age,
			Gender: a.Gender,
		})
	}

	return movieResponse{
		ID:          m.ID,
		Title:       m.Title,
		ReleaseDate: m.ReleaseDate,
		Actors: nestedActors{
			Actors:      summaries,
			TotalActors: len(summaries),
		},
	}, nil
}

// resolveActorIDs は俳優IDのリストを俳優エンティティに解決する。
// 存在しないIDが含まれる場合は404を返してリクエストを打ち切り、falseを返す。
func (s *Server) resolveActorIDs(c *gin.Context, ids []int64) ([]Actor, bool) {
	actors := make([]Actor, 0, len(ids))
	for _, id := range ids {
		a, err := s.store.GetActorByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find actor with id %d", id))
			return nil, false
		}
		if err != nil {
			respondStoreError(c, err)
			return nil, false
		}
		actors = append(actors, a)
	}
	return actors, true
}

// handleListMovies は映画一覧取得を処理するハンドラを返す。
func (s *Server) handleListMovies() gin.HandlerFunc {
	return func(c *gin.Context) {
		movies, err := s.store.ListMovies(c.Request.Context())
		if err != nil {
			respondStoreError(c, err)
			return
		}

		formatted := make([]movieResponse, 0, len(movies))
		for _, m := range movies {
			f, err := s.formatMovie(c.Request.Context(), m)
			if err != nil {
				respondStoreError(c, err)
				return
			}
			formatted = append(formatted, f)
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"movies":       formatted,
			"total_movies": len(formatted),
		})
	}
}

// handleCreateMovie は映画作成を処理するハンドラを返す。
// 関連する俳優IDはすべて先に解決し、1つでも存在しなければ何も作成しない。
func (s *Server) handleCreateMovie() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req movieRequest
		present, _, err := bindRequest(c, &req)
		if err != nil || !present {
			respondError(c, http.StatusBadRequest, "Bad request - movie_data is required")
			return
		}

		if req.Title == "" {
			respondError(c, http.StatusBadRequest, "Bad request - title is required")
			return
		}
		if req.ReleaseDate == "" {
			respondError(c, http.StatusBadRequest, "Bad request - release_date is required")
			return
		}

		actors, ok := s.resolveActorIDs(c, req.Actors)
		if !ok {
			return
		}

		movieID, err := s.store.CreateMovie(c.Request.Context(), req.Title, req.ReleaseDate)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		for _, a := range actors {
			if err := s.store.AttachActor(c.Request.Context(), movieID, a.ID); err != nil {
				respondStoreError(c, err)
				return
			}
		}

		movie, err := s.store.GetMovieByID(c.Request.Context(), movieID)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		formatted, err := s.formatMovie(c.Request.Context(), movie)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "movie": formatted})
	}
}

// handleGetMovie は映画詳細取得を処理するハンドラを返す。
func (s *Server) handleGetMovie() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		movie, err := s.store.GetMovieByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find movie with id %d", id))
			return
		}
		if err != nil {
			respondStoreError(c, err)
			return
		}

		formatted, err := s.formatMovie(c.Request.Context(), movie)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "movie": formatted})
	}
}

// handleUpdateMovie は映画の部分更新を処理するハンドラを返す。
// ボディに含まれる空でないフィールドのみ反映し、俳優IDは既存の関連に追加する。
func (s *Server) handleUpdateMovie() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		var req movieRequest
		present, fields, err := bindRequest(c, &req)
		if err != nil || !present || fields == 0 {
			respondError(c, http.StatusBadRequest, "Bad request - movie_data is required")
			return
		}

		movie, err := s.store.GetMovieByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find movie with id %d", id))
			return
		}
		if err != nil {
			respondStoreError(c, err)
			return
		}

		title := movie.Title
		if req.Title != "" {
			title = req.Title
		}
		releaseDate := movie.ReleaseDate
		if req.ReleaseDate != "" {
			releaseDate = req.ReleaseDate
		}

		actors, ok := s.resolveActorIDs(c, req.Actors)
		if !ok {
			return
		}

		if err := s.store.UpdateMovie(c.Request.Context(), id, title, releaseDate); err != nil {
			respondStoreError(c, err)
			return
		}

		for _, a := range actors {
			if err := s.store.AttachActor(c.Request.Context(), id, a.ID); err != nil {
				respondStoreError(c, err)
				return
			}
		}

		updated, err := s.store.GetMovieByID(c.Request.Context(), id)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		formatted, err := s.formatMovie(c.Request.Context(), updated)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "movie": formatted})
	}
}

// handleDeleteMovie は映画削除を処理するハンドラを返す。
// 削除は関連行のみに波及し、関連していた俳優は残る。
func (s *Server) handleDeleteMovie() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		if _, err := s.store.GetMovieByID(c.Request.Context(), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find movie with id %d", id))
				return
			}
			respondStoreError(c, err)
			return
		}

		if err := s.store.DeleteMovie(c.Request.Context(), id); err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "movie_id": id})
	}
}
