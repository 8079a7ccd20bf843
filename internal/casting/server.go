package casting

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/casting/pkg/auth"
	"github.com/nao1215/casting/pkg/middleware"
)

// Server はキャスティングエージェンシーAPIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はクエリ実行オブジェクト。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// verifier はBearerトークンの検証器。
	verifier *auth.Verifier
}

// NewServer は新しいキャスティングエージェンシーサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("CASTING_DB", "/data/casting.db")
	sqlDB, err := sql.Open("sqlite",
		dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	domain := getEnvOr("AUTH0_DOMAIN", "dev-casting.us.auth0.com")
	audience := getEnvOr("API_AUDIENCE", "casting")
	frontendURL := getEnvOr("FRONTEND_URL", "*")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:   router,
		port:     port,
		store:    NewStore(sqlDB),
		db:       sqlDB,
		verifier: auth.NewVerifier("https://"+domain, audience),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 保護されたルートはトークン検証と権限チェックのガードで包む。
func (s *Server) setupRoutes() {
	s.registerRoutes(func(permission string) gin.HandlerFunc {
		return auth.RequireScope(s.verifier, permission)
	})
}

// registerRoutes は権限ガードの生成関数を受け取って全ルートを登録する。
// テストではトークン検証を迂回するガードを注入する。
func (s *Server) registerRoutes(guard func(permission string) gin.HandlerFunc) {
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"hello": "world"})
	})

	movies := s.router.Group("/movies")
	{
		// 映画一覧取得
		movies.GET("", guard("read:movies"), s.handleListMovies())
		// 映画作成
		movies.POST("", guard("create:movies"), s.handleCreateMovie())
		// 映画詳細取得
		movies.GET("/:id", guard("read:movies"), s.handleGetMovie())
		// 映画の部分更新
		movies.PATCH("/:id", guard("update:movies"), s.handleUpdateMovie())
		// 映画削除
		movies.DELETE("/:id", guard("delete:movies"), s.handleDeleteMovie())
	}

	actors := s.router.Group("/actors")
	{
		// 俳優一覧取得
		actors.GET("", guard("read:actors"), s.handleListActors())
		// 俳優作成
		actors.POST("", guard("create:actors"), s.handleCreateActor())
		// 俳優詳細取得
		actors.GET("/:id", guard("read:actors"), s.handleGetActor())
		// 俳優の部分更新
		actors.PATCH("/:id", guard("update:actors"), s.handleUpdateActor())
		// 俳優削除
		actors.DELETE("/:id", guard("delete:actors"), s.handleDeleteActor())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "casting"})
	})
}

// getEnvOr は環境変数の値を返し、未設定の場合はデフォルト値を返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// respondError は統一エラーボディでレスポンスを返す。
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   status,
		"message": message,
	})
}

// respondStoreError は永続化層のエラーをログに記録し、HTTPレスポンスに変換する。
// 制約違反はドライバのメッセージ付きで422、それ以外は汎用メッセージの500となる。
func respondStoreError(c *gin.Context, err error) {
	log.Printf("永続化エラー: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	if isConstraintViolation(err) {
		respondError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondError(c, http.StatusInternalServerError, "internal server error")
}

// parseIDParam はパスパラメータのIDを整数として解析する。
// 整数でない場合は404を返してリクエストを打ち切る。
func parseIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusNotFound, "resource not found")
		return 0, false
	}
	return id, true
}

// bindRequest はリクエストボディをJSONとして解析する。
// 戻り値presentはボディにJSONオブジェクトが存在したか、
// fieldsはそのオブジェクトのメンバー数を表す。
// ボディが空・JSON null・解析不能な型を含む場合はpresent=falseまたはerrを返す。
func bindRequest(c *gin.Context, out any) (present bool, fields int, err error) {
	data, err := c.GetRawData()
	if err != nil {
		return false, 0, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, 0, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return false, 0, err
	}
	if members == nil {
		return false, 0, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, 0, err
	}
	return true, len(members), nil
}
