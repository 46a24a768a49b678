package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"geo-dash/internal/migrate"
	"geo-dash/internal/store"
	"geo-dash/internal/utils"

	"github.com/joho/godotenv"
)

// 文档注释：行政区指标维护命令行
// 背景：交互式增删改查 _region_metrics，供演示数据之外的真实指标录入；先用 scope 选择州/区县，再按区域名操作。
// 约束：名称含空格时用双引号包裹；未指定 --env 时逐项询问连接参数。

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  scope district <state>")
	fmt.Println("  scope subdistrict <state> <district>")
	fmt.Println("  add <region> <value>")
	fmt.Println("  set <region> <value>")
	fmt.Println("  del <region>")
	fmt.Println("  get <region>")
	fmt.Println("  list")
	fmt.Println("  help")
	fmt.Println("  exit")
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	s, _ := r.ReadString('\n')
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// fields：按空白切分，双引号内的空白保留
func fields(line string) []string {
	var out []string
	var cur strings.Builder
	quoted, have := false, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			have = true
		case !quoted && (r == ' ' || r == '\t'):
			if have {
				out = append(out, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		out = append(out, cur.String())
	}
	return out
}

// parseScope：scope 命令参数
func parseScope(args []string) (store.Scope, error) {
	if len(args) < 2 {
		return store.Scope{}, fmt.Errorf("usage: scope district <state> | scope subdistrict <state> <district>")
	}
	switch strings.ToLower(args[0]) {
	case "district":
		return store.Scope{Level: "district", State: args[1]}, nil
	case "subdistrict":
		if len(args) < 3 {
			return store.Scope{}, fmt.Errorf("usage: scope subdistrict <state> <district>")
		}
		return store.Scope{Level: "subdistrict", State: args[1], District: args[2]}, nil
	}
	return store.Scope{}, fmt.Errorf("unknown level %q", args[0])
}

func openDB() (*sql.DB, error) {
	var envFile string
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--env" && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
			i++
		} else if strings.HasSuffix(os.Args[i], ".env") {
			envFile = os.Args[i]
		}
	}
	if envFile != "" {
		_ = godotenv.Load(envFile)
		return utils.OpenPostgresFromEnv()
	}
	r := bufio.NewReader(os.Stdin)
	fmt.Println("输入数据库连接参数，回车使用默认值")
	os.Setenv("PG_HOST", prompt(r, "PG_HOST", "127.0.0.1"))
	os.Setenv("PG_PORT", prompt(r, "PG_PORT", "5432"))
	os.Setenv("PG_USER", prompt(r, "PG_USER", "postgres"))
	os.Setenv("PG_PASSWORD", prompt(r, "PG_PASSWORD", ""))
	os.Setenv("PG_DB", prompt(r, "PG_DB", "geodash"))
	os.Setenv("PG_SSLMODE", prompt(r, "PG_SSLMODE", "disable"))
	return utils.OpenPostgresFromEnv()
}

func main() {
	db, err := openDB()
	if err != nil {
		fmt.Println("db error:", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = migrate.EnsureSchema(ctx, db)
	cancel()
	if err != nil {
		fmt.Println("schema error:", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)
	fmt.Println("metric kv cli ready")
	printHelp()

	var scope store.Scope
	in := bufio.NewScanner(os.Stdin)
	for {
		if scope.State != "" {
			fmt.Printf("%s/%s%s> ", scope.Level, scope.State, prefixed(scope.District))
		} else {
			fmt.Print("> ")
		}
		if !in.Scan() {
			break
		}
		parts := fields(strings.TrimSpace(in.Text()))
		if len(parts) == 0 {
			continue
		}
		ctx := context.Background()
		cmd := strings.ToLower(parts[0])
		if cmd != "scope" && cmd != "help" && cmd != "exit" && cmd != "quit" && scope.State == "" {
			fmt.Println("select a scope first")
			continue
		}
		switch cmd {
		case "exit", "quit":
			return
		case "help":
			printHelp()
		case "scope":
			s, err := parseScope(parts[1:])
			if err != nil {
				fmt.Println(err)
				continue
			}
			scope = s
		case "add", "set":
			if len(parts) < 3 {
				fmt.Println("usage: " + cmd + " <region> <value>")
				continue
			}
			v, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				fmt.Println("error: bad value")
				continue
			}
			if cmd == "add" {
				ok, err := st.Insert(ctx, scope, parts[1], v)
				switch {
				case err != nil:
					fmt.Println("error:", err)
				case !ok:
					fmt.Println("exists")
				default:
					fmt.Println("ok")
				}
				continue
			}
			if err := st.Upsert(ctx, scope, parts[1], v); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("ok")
			}
		case "del":
			if len(parts) < 2 {
				fmt.Println("usage: del <region>")
				continue
			}
			ok, err := st.Delete(ctx, scope, parts[1])
			switch {
			case err != nil:
				fmt.Println("error:", err)
			case !ok:
				fmt.Println("none")
			default:
				fmt.Println("ok")
			}
		case "get":
			if len(parts) < 2 {
				fmt.Println("usage: get <region>")
				continue
			}
			v, ok, err := st.Get(ctx, scope, parts[1])
			switch {
			case err != nil:
				fmt.Println("error:", err)
			case !ok:
				fmt.Println("none")
			default:
				fmt.Println(strconv.FormatFloat(v, 'f', -1, 64))
			}
		case "list":
			xs, err := st.List(ctx, scope)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if len(xs) == 0 {
				fmt.Println("none")
			}
			for _, e := range xs {
				fmt.Printf("%s -> %s\n", e.Region, strconv.FormatFloat(e.Value, 'f', -1, 64))
			}
		default:
			fmt.Println("unknown command")
		}
	}
}

func prefixed(s string) string {
	if s == "" {
		return ""
	}
	return "/" + s
}
