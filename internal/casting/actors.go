package casting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// actorRequest は俳優の作成・更新リクエストのJSON構造。
// 部分更新ではゼロ値のフィールドは「未指定」として扱われる。
type actorRequest struct {
	// Name は俳優の氏名。
	Name string `json:"name"`
	// Age は俳優の年齢。
	Age int64 `json:"age"`
	// Gender は俳優の性別。
	Gender string `json:"gender"`
	// Movies は関連付ける映画IDのリスト。
	Movies []int64 `json:"movies"`
}

// movieSummary は俳優レスポンスに入れ子で含まれる映画の要約。
// 相互の無限展開を防ぐため、映画側の関連俳優は含まない。
type movieSummary struct {
	// ID は映画の一意識別子。
	ID int64 `json:"id"`
	// Title は映画のタイトル。
	Title string `json:"title"`
	// ReleaseDate は公開日。
	ReleaseDate string `json:"release_date"`
}

// nestedMovies は俳優に関連付けられた映画の要約リストと件数。
type nestedMovies struct {
	// Movies は映画の要約リスト。
	Movies []movieSummary `json:"movies"`
	// TotalMovies は関連付けられた映画の件数。
	TotalMovies int `json:"total_movies"`
}

// actorResponse は俳優のJSONレスポンス構造。
type actorResponse struct {
	// ID は俳優の一意識別子。
	ID int64 `json:"id"`
	// Name は俳優の氏名。
	Name string `json:"name"`
	// Age は俳優の年齢。
	Age int64 `json:"age"`
	// Gender は俳優の性別。
	Gender string `json:"gender"`
	// Movies は関連付けられた映画の要約。
	Movies nestedMovies `json:"movies"`
}

// formatActor は俳優とその関連映画をレスポンス構造に変換する。
func (s *Server) formatActor(ctx context.Context, a Actor) (actorResponse, error) {
	movies, err := s.store.MoviesForActor(ctx, a.ID)
	if err != nil {
		return actorResponse{}, err
	}

	summaries := make([]movieSummary, 0, len(movies))
	for _, m := range movies {
		summaries = append(summaries, movieSummary{
			ID:          m.ID,
			Title:       m.Title,
			ReleaseDate: m.ReleaseDate,
		})
	}

	return actorResponse{
		ID:     a.ID,
		Name:   a.Name,
		Age:    a.Age,
		Gender: a.Gender,
		Movies: nestedMovies{
			Movies:      summaries,
			TotalMovies: len(summaries),
		},
	}, nil
}

// resolveMovieIDs は映画IDのリストを映画エンティティに解決する。
// 存在しないIDが含まれる場合は404を返してリクエストを打ち切り、falseを返す。
func (s *Server) resolveMovieIDs(c *gin.Context, ids []int64) ([]Movie, bool) {
	movies := make([]Movie, 0, len(ids))
	for _, id := range ids {
		m, err := s.store.GetMovieByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find movie with id %d", id))
			return nil, false
		}
		if err != nil {
			respondStoreError(c, err)
			return nil, false
		}
		movies = append(movies, m)
	}
	return movies, true
}

// handleListActors は俳優一覧取得を処理するハンドラを返す。
func (s *Server) handleListActors() gin.HandlerFunc {
	return func(c *gin.Context) {
		actors, err := s.store.ListActors(c.Request.Context())
		if err != nil {
			respondStoreError(c, err)
			return
		}

		formatted := make([]actorResponse, 0, len(actors))
		for _, a := range actors {
			f, err := s.formatActor(c.Request.Context(), a)
			if err != nil {
				respondStoreError(c, err)
				return
			}
			formatted = append(formatted, f)
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"actors":       formatted,
			"total_actors": len(formatted),
		})
	}
}

// handleCreateActor は俳優作成を処理するハンドラを返す。
// 関連する映画IDはすべて先に解決し、1つでも存在しなければ何も作成しない。
func (s *Server) handleCreateActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actorRequest
		present, _, err := bindRequest(c, &req)
		if err != nil || !present {
			respondError(c, http.StatusBadRequest, "Bad request - actor_data is required")
			return
		}

		if req.Name == "" {
			respondError(c, http.StatusBadRequest, "Bad request - name is required")
			return
		}
		if req.Age == 0 {
			respondError(c, http.StatusBadRequest, "Bad request - age is required")
			return
		}
		if req.Gender == "" {
			respondError(c, http.StatusBadRequest, "Bad request - gender is required")
			return
		}

		movies, ok := s.resolveMovieIDs(c, req.Movies)
		if !ok {
			return
		}

		actorID, err := s.store.CreateActor(c.Request.Context(), req.Name, req.Age, req.Gender)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		for _, m := range movies {
			if err := s.store.AttachActor(c.Request.Context(), m.ID, actorID); err != nil {
				respondStoreError(c, err)
				return
			}
		}

		actor, err := s.store.GetActorByID(c.Request.Context(), actorID)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		formatted, err := s.formatActor(c.Request.Context(), actor)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "actor": formatted})
	}
}

// handleGetActor は俳優詳細取得を処理するハンドラを返す。
func (s *Server) handleGetActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		actor, err := s.store.GetActorByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find actor with id %d", id))
			return
		}
		if err != nil {
			respondStoreError(c, err)
			return
		}

		formatted, err := s.formatActor(c.Request.Context(), actor)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "actor": formatted})
	}
}

// handleUpdateActor は俳優の部分更新を処理するハンドラを返す。
// ボディに含まれる空でない（ゼロでない）フィールドのみ反映し、
// 映画IDは既存の関連に追加する。
func (s *Server) handleUpdateActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		var req actorRequest
		present, fields, err := bindRequest(c, &req)
		if err != nil || !present || fields == 0 {
			respondError(c, http.StatusBadRequest, "Bad request - actor_data is required")
			return
		}

		actor, err := s.store.GetActorByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find actor with id %d", id))
			return
		}
		if err != nil {
			respondStoreError(c, err)
			return
		}

		name := actor.Name
		if req.Name != "" {
			name = req.Name
		}
		age := actor.Age
		if req.Age != 0 {
			age = req.Age
		}
		gender := actor.Gender
		if req.Gender != "" {
			gender = req.Gender
		}

		movies, ok := s.resolveMovieIDs(c, req.Movies)
		if !ok {
			return
		}

		if err := s.store.UpdateActor(c.Request.Context(), id, name, age, gender); err != nil {
			respondStoreError(c, err)
			return
		}

		for _, m := range movies {
			if err := s.store.AttachActor(c.Request.Context(), m.ID, id); err != nil {
				respondStoreError(c, err)
				return
			}
		}

		updated, err := s.store.GetActorByID(c.Request.Context(), id)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		formatted, err := s.formatActor(c.Request.Context(), updated)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "actor": formatted})
	}
}

// handleDeleteActor は俳優削除を処理するハンドラを返す。
// 削除は関連行のみに波及し、関連していた映画は残る。
func (s *Server) handleDeleteActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		if _, err := s.store.GetActorByID(c.Request.Context(), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(c, http.StatusNotFound, fmt.Sprintf("Could not find actor with id %d", id))
				return
			}
			respondStoreError(c, err)
			return
		}

		if err := s.store.DeleteActor(c.Request.Context(), id); err != nil {
			respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "actor_id": id})
	}
}
