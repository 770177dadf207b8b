package main

import (
	"flag"
	"fmt"

	"Holdfast/app/common/response"
	boot "Holdfast/app/services/inventory/internal/bootstrap"
	"Holdfast/app/services/inventory/internal/config"
	"Holdfast/app/services/inventory/internal/handler"
	"Holdfast/app/services/inventory/internal/svc"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/service"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"
	"github.com/zeromicro/zero-contrib/zrpc/registry/consul"
)

var configFile = flag.String("f", "etc/inventory.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	ctx := svc.NewServiceContext(c)
	defer ctx.Close()

	server := rest.MustNewServer(c.RestConf)

	httpx.SetErrorHandlerCtx(response.ErrorHandler)
	handler.RegisterHandlers(server, ctx)

	if stop := boot.StartAsynq(ctx); stop != nil {
		defer stop()
	}
	if stop := boot.StartKafka(ctx); stop != nil {
		defer stop()
	}

	if c.Consul.Host != "" {
		listenOn := fmt.Sprintf("%s:%d", c.Host, c.Port)
		if err := consul.RegisterService(listenOn, c.Consul); err != nil {
			logx.Errorw("register service error", logx.Field("err", err))
			panic(err)
		}
	}

	group := service.NewServiceGroup()
	defer group.Stop()
	group.Add(server)
	group.Add(ctx.Reaper)

	fmt.Printf("Starting server at %s:%d...\n", c.Host, c.Port)
	group.Start()
}
