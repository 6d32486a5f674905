package main

import (
	"embed"
	"flag"
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	sophosiaApp "sophosia/internal/app"
	"sophosia/internal/config"
	"sophosia/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	serveMCP := flag.Bool("mcp", false, "serve the MCP tools on stdin/stdout instead of opening the window")
	configPath := flag.String("config", "", "path of the configuration file")
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			slog.Error("resolve config path", "err", err)
			os.Exit(1)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("load config", "path", path, "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.Logging)
	defer logging.Close()

	if *serveMCP {
		if err := sophosiaApp.ServeMCP(cfg); err != nil {
			logging.L().Error("mcp", "err", err)
			os.Exit(1)
		}
		return
	}

	app := sophosiaApp.New(cfg)

	// macOS needs an Edit menu for Cmd+C/V/X/A to reach the WebView
	appMenu := menu.NewMenu()
	appMenu.Append(menu.EditMenu())

	err = wails.Run(&options.App{
		Title:     "Sophosia",
		Width:     1280,
		Height:    800,
		MinWidth:  800,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 250, G: 250, B: 250, A: 1},
		Menu:             appMenu,
		OnStartup:        app.Startup,
		OnBeforeClose:    app.BeforeClose,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideTitle:                  true,
				HideTitleBar:               false,
				FullSizeContent:            true,
				UseToolbar:                 true,
				HideToolbarSeparator:       true,
			},
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
			About: &mac.AboutInfo{
				Title:   "Sophosia",
				Message: "PDF reader with highlights, comments and ink",
			},
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
