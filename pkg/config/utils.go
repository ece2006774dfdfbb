package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfigNotFound 配置文件不存在
var ErrConfigNotFound = errors.New("config file not found")

// pathVars 默认路径模板中可用的变量
type pathVars struct {
	AppName string
	ExecDir string
	HomeDir string
}

func newPathVars(appName string) pathVars {
	v := pathVars{AppName: appName}
	if exe, err := os.Executable(); err == nil {
		v.ExecDir = filepath.Dir(exe)
	}
	v.HomeDir, _ = os.UserHomeDir()
	return v
}

// expand 替换 {{.AppName}} {{.ExecDir}} {{.HomeDir}}，并展开开头的 ~/
// 模板依赖的变量为空时返回空串，调用方跳过该路径
func (v pathVars) expand(tpl string) string {
	if strings.HasPrefix(tpl, "~/") {
		tpl = "{{.HomeDir}}" + tpl[1:]
	}
	for name, val := range map[string]string{"ExecDir": v.ExecDir, "HomeDir": v.HomeDir} {
		if val == "" && strings.Contains(tpl, "{{."+name+"}}") {
			return ""
		}
	}
	r := strings.NewReplacer(
		"{{.AppName}}", v.AppName,
		"{{.ExecDir}}", v.ExecDir,
		"{{.HomeDir}}", v.HomeDir,
	)
	return filepath.Clean(r.Replace(tpl))
}

// checkConfigFile 路径必须是存在的普通文件
func checkConfigFile(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
