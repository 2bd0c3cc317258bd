package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"listing-watcher/pkg/config"
)

const version = "listing-watcher cli 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, newClient))
}

func run(args []string, stdout, stderr io.Writer, client func() *Client) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	cmd, args := args[0], args[1:]
	var (
		out map[string]interface{}
		err error
	)
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "config":
		return runConfig(stdout, stderr)
	case "status":
		out, err = client().Status()
	case "start":
		dest := ""
		if len(args) > 0 {
			dest = args[0]
		}
		out, err = client().Start(dest)
	case "stop":
		out, err = client().Stop()
	case "accept":
		if len(args) < 1 {
			fmt.Fprintln(stderr, "Usage: watcher-cli accept <handle> [destination]")
			return 1
		}
		dest := ""
		if len(args) > 1 {
			dest = args[1]
		}
		out, err = client().Accept(args[0], dest)
	case "skip":
		if len(args) < 1 {
			fmt.Fprintln(stderr, "Usage: watcher-cli skip <handle>")
			return 1
		}
		out, err = client().Skip(args[0])
	case "login":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "Usage: watcher-cli login <username> <password>")
			return 1
		}
		token, lerr := client().Login(args[0], args[1])
		if lerr != nil {
			fmt.Fprintf(stderr, "登录失败: %v\n", lerr)
			return 1
		}
		fmt.Fprintf(stdout, "export WATCHER_API_TOKEN=%s\n", token)
		return 0
	default:
		printUsage(stderr)
		return 1
	}

	if len(out) > 0 {
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(stdout, string(b))
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s 失败: %v\n", cmd, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: watcher-cli <command> [args]")
	fmt.Fprintln(w, "  version                     - 显示版本")
	fmt.Fprintln(w, "  config                      - 显示配置概要")
	fmt.Fprintln(w, "  status                      - 引擎状态")
	fmt.Fprintln(w, "  start [destination]         - 开始抓取与投递")
	fmt.Fprintln(w, "  stop                        - 停止")
	fmt.Fprintln(w, "  accept <handle> [dest]      - 生成并发送回复")
	fmt.Fprintln(w, "  skip <handle>               - 跳过条目")
	fmt.Fprintln(w, "  login <username> <password> - 获取 API token（WATCHER_API_TOKEN）")
	fmt.Fprintln(w, "环境变量: WATCHER_API_URL（默认 http://localhost:8080）、WATCHER_CONFIG")
}

func runConfig(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "watch.list_url=%s\n", cfg.Watch.ListURL)
	fmt.Fprintf(stdout, "watch.interval=%s\n", cfg.Watch.Interval)
	fmt.Fprintf(stdout, "watch.fetcher.type=%s\n", cfg.Watch.Fetcher.Type)
	fmt.Fprintf(stdout, "notify.targets=%v\n", cfg.Notify.Targets)
	fmt.Fprintf(stdout, "model.provider=%s model=%s\n", cfg.Model.Provider, cfg.Model.Model)
	fmt.Fprintf(stdout, "cache.type=%s\n", cfg.Cache.Type)
	fmt.Fprintf(stdout, "api=%s:%d\n", cfg.API.Host, cfg.API.Port)
	return 0
}
