package router

import (
	"CommentThreads/internal/router/handlers"
	"CommentThreads/internal/router/middleware"
	"github.com/wb-go/wbf/ginext"
	"go.uber.org/zap"
)

type Router struct {
	rout    *ginext.Engine
	handler *handlers.CommentHandler
	tokens  middleware.TokenParser
	log     *zap.Logger
}

func NewRouter(mode string, handler *handlers.CommentHandler, tokens middleware.TokenParser, log *zap.Logger) *Router {
	router := Router{
		rout:    ginext.New(mode),
		handler: handler,
		tokens:  tokens,
		log:     log.Named("router"),
	}
	router.setupRouter()
	return &router
}

func (r *Router) setupRouter() {
	r.rout.Use(middleware.LoggingMiddleware(r.log))
	r.rout.Use(middleware.ActorMiddleware(r.tokens))

	r.rout.POST("/threads/:thread/comments", r.handler.CreateComment)
	r.rout.GET("/threads/:thread/comments", r.handler.GetThread)
	r.rout.GET("/threads/:thread/search", r.handler.SearchComments)

	r.rout.GET("/comments/:id", r.handler.GetSubtree)
	r.rout.GET("/comments/:id/ancestors", r.handler.GetAncestors)
	r.rout.PATCH("/comments/:id", r.handler.EditComment)
	r.rout.DELETE("/comments/:id", r.handler.DeleteComment)

	r.rout.POST("/moderation/:action", r.handler.Moderate)
}

func (r *Router) GetEngine() *ginext.Engine {
	return r.rout
}

func (r *Router) Start(addr string) error {
	return r.rout.Run(addr)
}
