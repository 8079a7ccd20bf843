package casting

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Movie は映画エンティティのDB行を表す。
type Movie struct {
	// ID はシステムが割り当てる一意識別子。
	ID int64
	// Title は映画のタイトル。
	Title string
	// ReleaseDate は公開日（YYYY-MM-DD形式）。
	ReleaseDate string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Actor は俳優エンティティのDB行を表す。
type Actor struct {
	// ID はシステムが割り当てる一意識別子。
	ID int64
	// Name は俳優の氏名。
	Name string
	// Age は俳優の年齢。
	Age int64
	// Gender は俳優の性別。
	Gender string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Store は映画・俳優・関連テーブルへのクエリを実行する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しいクエリ実行オブジェクトを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// isConstraintViolation はエラーがSQLiteの制約違反（CHECK・NOT NULL・FK等）かを判定する。
// 制約違反はクライアント起因のデータ不正として422に変換される。
func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// ListMovies はすべての映画をID昇順で取得する。
func (s *Store) ListMovies(ctx context.Context) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, release_date, created_at, updated_at FROM movies ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var movies []Movie
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.ReleaseDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// GetMovieByID は指定されたIDの映画を取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) GetMovieByID(ctx context.Context, id int64) (Movie, error) {
	var m Movie
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, release_date, created_at, updated_at FROM movies WHERE id = ?", id,
	).Scan(&m.ID, &m.Title, &m.ReleaseDate, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// CreateMovie は新しい映画を作成し、割り当てられたIDを返す。
func (s *Store) CreateMovie(ctx context.Context, title, releaseDate string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO movies (title, release_date) VALUES (?, ?)", title, releaseDate)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateMovie は映画のタイトルと公開日を更新し、updated_atを進める。
func (s *Store) UpdateMovie(ctx context.Context, id int64, title, releaseDate string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE movies SET title = ?, release_date = ?, updated_at = datetime('now') WHERE id = ?",
		title, releaseDate, id)
	return err
}

// DeleteMovie は映画とその関連行を削除する。関連先の俳優は削除しない。
func (s *Store) DeleteMovie(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM movie_actor_assoc WHERE movie_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM movies WHERE id = ?", id)
	return err
}

// ListActors はすべての俳優をID昇順で取得する。
func (s *Store) ListActors(ctx context.Context) ([]Actor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, age, gender, created_at, updated_at FROM actors ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actors []Actor
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Age, &a.Gender, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

// GetActorByID は指定されたIDの俳優を取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) GetActorByID(ctx context.Context, id int64) (Actor, error) {
	var a Actor
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, age, gender, created_at, updated_at FROM actors WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &a.Age, &a.Gender, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateActor は新しい俳優を作成し、割り当てられたIDを返す。
func (s *Store) CreateActor(ctx context.Context, name string, age int64, gender string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO actors (name, age, gender) VALUES (?, ?, ?)", name, age, gender)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateActor は俳優の氏名・年齢・性別を更新し、updated_atを進める。
func (s *Store) UpdateActor(ctx context.Context, id int64, name string, age int64, gender string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE actors SET name = ?, age = ?, gender = ?, updated_at = datetime('now') WHERE id = ?",
		name, age, gender, id)
	return err
}

// DeleteActor は俳優とその関連行を削除する。関連先の映画は削除しない。
func (s *Store) DeleteActor(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM movie_actor_assoc WHERE actor_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM actors WHERE id = ?", id)
	return err
}

// AttachActor は映画と俳優の関連行を1行挿入する。
// 同じ組み合わせの重複挿入はチェックせず、そのまま追加される。
func (s *Store) AttachActor(ctx context.Context, movieID, actorID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO movie_actor_assoc (movie_id, actor_id) VALUES (?, ?)", movieID, actorID)
	return err
}

// ActorsForMovie は映画に関連付けられた俳優を関連付け順で取得する。
func (s *Store) ActorsForMovie(ctx context.Context, movieID int64) ([]Actor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.age, a.gender, a.created_at, a.updated_at
		FROM movie_actor_assoc ma
		JOIN actors a ON a.id = ma.actor_id
		WHERE ma.movie_id = ?
		ORDER BY ma.id`, movieID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actors []Actor
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Age, &a.Gender, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

// MoviesForActor は俳優に関連付けられた映画を関連付け順で取得する。
func (s *Store) MoviesForActor(ctx context.Context, actorID int64) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.release_date, m.created_at, m.updated_at
		FROM movie_actor_assoc ma
		JOIN movies m ON m.id = ma.movie_id
		WHERE ma.actor_id = ?
		ORDER BY ma.id`, actorID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var movies []Movie
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.ReleaseDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}
