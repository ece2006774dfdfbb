package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// ChangeFunc 配置变更回调，old/new 均为配置结构体指针
type ChangeFunc func(old, new interface{})

// ConfigManager 通用配置管理器
type ConfigManager struct {
	instance         interface{}  // 配置实例
	configPath       string       // 配置文件路径
	appName          string       // 应用名称
	serializer       Serializer   // 当前使用的序列化器
	forceFormat      Serializer   // 强制指定的格式（优先级最高）
	supportedFormats []Serializer // 支持的配置格式列表
	defaultPaths     []string     // 默认配置路径模板
	once             sync.Once    // 确保配置只加载一次
	mu               sync.RWMutex // 读写锁
	loadErr          error        // 加载错误
	log              logger.Logger

	// 配置监听相关
	enableWatch           bool
	watchDebounceInterval time.Duration
	watcher               *fsnotify.Watcher
	watchQuit             chan struct{}
	closeOnce             sync.Once

	callbacks []ChangeFunc
}

// NewConfigManager 创建配置管理器实例
// cfg: 配置结构体指针（必须传入指针）
func NewConfigManager(cfg interface{}, options ...Option) *ConfigManager {
	if cfg == nil {
		panic("config instance cannot be nil")
	}
	if reflect.ValueOf(cfg).Kind() != reflect.Ptr {
		panic("config instance must be a pointer")
	}

	cm := &ConfigManager{
		instance:         cfg,
		appName:          "fsm",
		serializer:       &YAMLSerializer{},
		supportedFormats: []Serializer{&YAMLSerializer{}, &JSONSerializer{}},
		defaultPaths: []string{
			"./{{.AppName}}",
			"{{.ExecDir}}/{{.AppName}}",
			"~/.config/{{.AppName}}/{{.AppName}}",
			"/etc/{{.AppName}}/{{.AppName}}",
		},
		log:       logger.Default(),
		watchQuit: make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// LoadConfig 加载配置文件
// customPath: 自定义配置路径，空字符串使用默认路径
func (cm *ConfigManager) LoadConfig(customPath string) error {
	cm.once.Do(func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()

		var err error
		if customPath != "" {
			if err = checkConfigFile(customPath); err != nil {
				cm.loadErr = fmt.Errorf("invalid custom config path: %w", err)
				return
			}
			cm.configPath = customPath
			cm.chooseSerializer(customPath)
		} else if cm.configPath, err = cm.findDefaultConfigPath(); err != nil {
			cm.loadErr = fmt.Errorf("default config not found: %w", err)
			return
		}

		if err = cm.decodeFile(cm.configPath, cm.instance); err != nil {
			cm.loadErr = fmt.Errorf("parse config failed: %w", err)
			return
		}

		if cm.enableWatch {
			if err = cm.startWatch(); err != nil {
				cm.log.Warn("config watch disabled", logger.String("path", cm.configPath), logger.Err(err))
			}
		}
	})

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.loadErr
}

// GetConfig 获取配置实例
func (cm *ConfigManager) GetConfig() (interface{}, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.loadErr != nil {
		return nil, cm.loadErr
	}
	if cm.configPath == "" {
		return nil, errors.New("config not initialized, call LoadConfig first")
	}
	return cm.instance, nil
}

// Path 当前配置文件路径
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// SaveConfig 保存配置到文件，先写临时文件再替换
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.configPath == "" {
		return errors.New("config not initialized")
	}

	data, err := cm.serializer.Marshal(cm.instance)
	if err != nil {
		return fmt.Errorf("marshal config failed: %w", err)
	}

	tmpPath := cm.configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp config failed: %w", err)
	}
	if err := os.Rename(tmpPath, cm.configPath); err != nil {
		return fmt.Errorf("rename temp config failed: %w", err)
	}
	return nil
}

// ReloadConfig 重新读取配置文件。解析失败时保留旧配置
func (cm *ConfigManager) ReloadConfig() error {
	cm.mu.Lock()
	currentPath := cm.configPath
	if currentPath == "" {
		cm.mu.Unlock()
		return errors.New("config path not initialized")
	}

	newInstance := reflect.New(reflect.ValueOf(cm.instance).Elem().Type()).Interface()
	if err := cm.decodeFile(currentPath, newInstance); err != nil {
		cm.mu.Unlock()
		return err
	}

	oldInstance := cm.instance
	cm.instance = newInstance
	cm.loadErr = nil

	callbacks := make([]ChangeFunc, len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	// 回调在锁外执行
	for _, callback := range callbacks {
		callback(oldInstance, newInstance)
	}
	return nil
}

// EnableWatch 动态启用/禁用配置监听
func (cm *ConfigManager) EnableWatch(enable bool) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.enableWatch = enable
	if enable && cm.configPath != "" {
		return cm.startWatch()
	}
	cm.stopWatch()
	return nil
}

// Close 关闭配置管理器（停止监听）
func (cm *ConfigManager) Close() {
	cm.closeOnce.Do(func() {
		cm.mu.Lock()
		cm.stopWatch()
		cm.mu.Unlock()
		close(cm.watchQuit)
	})
}

// OnChange 注册配置变更回调
func (cm *ConfigManager) OnChange(callback ChangeFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, callback)
}

/* ------------------------------ 内部方法 ------------------------------ */

// chooseSerializer 强制格式 > 后缀识别 > 默认
func (cm *ConfigManager) chooseSerializer(path string) {
	if cm.forceFormat != nil {
		cm.serializer = cm.forceFormat
		return
	}

	ext := filepath.Ext(path)
	for _, format := range cm.supportedFormats {
		for _, e := range format.GetFileExts() {
			if e == ext {
				cm.serializer = format
				return
			}
		}
	}
}

// findDefaultConfigPath 按模板顺序查找，先试原路径再依次试各格式后缀
func (cm *ConfigManager) findDefaultConfigPath() (string, error) {
	vars := newPathVars(cm.appName)
	var tried []string

	for _, pathTpl := range cm.defaultPaths {
		basePath := vars.expand(pathTpl)
		if basePath == "" {
			continue
		}

		if checkConfigFile(basePath) == nil {
			cm.chooseSerializer(basePath)
			return basePath, nil
		}
		tried = append(tried, basePath)

		for _, format := range cm.supportedFormats {
			for _, ext := range format.GetFileExts() {
				if checkConfigFile(basePath+ext) == nil {
					cm.serializer = format
					return basePath + ext, nil
				}
			}
		}
	}

	return "", fmt.Errorf("%w (tried %s with %d formats)", ErrConfigNotFound, strings.Join(tried, ", "), len(cm.supportedFormats))
}

// decodeFile 读取、反序列化并应用环境变量覆盖
func (cm *ConfigManager) decodeFile(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file failed: %w", err)
	}
	if err := cm.serializer.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshal failed (%s): %w", cm.serializer.GetName(), err)
	}
	if err := applyEnvOverrides(into); err != nil {
		return fmt.Errorf("apply env overrides failed: %w", err)
	}
	return nil
}

// startWatch 启动配置文件监听，调用方持有写锁
func (cm *ConfigManager) startWatch() error {
	if cm.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	// 监听所在目录，编辑器的原子替换会让文件级监听失效
	if err := watcher.Add(filepath.Dir(cm.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("add watch path failed: %w", err)
	}

	cm.watcher = watcher
	go cm.watchLoop(watcher, cm.configPath, cm.watchDebounceInterval)
	return nil
}

// stopWatch 停止配置文件监听，调用方持有写锁
func (cm *ConfigManager) stopWatch() {
	if cm.watcher != nil {
		cm.watcher.Close()
		cm.watcher = nil
	}
}

// watchLoop 监听文件变化循环，防抖后自动重载
func (cm *ConfigManager) watchLoop(watcher *fsnotify.Watcher, path string, debounce time.Duration) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	debounceTimer := time.NewTimer(debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounceTimer.Reset(debounce)
			}

		case <-debounceTimer.C:
			if err := cm.ReloadConfig(); err != nil {
				cm.log.Error("config auto reload failed", logger.String("path", path), logger.Err(err))
			} else {
				cm.log.Info("config auto reloaded", logger.String("path", path))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			cm.log.Warn("config watch error", logger.Err(err))

		case <-cm.watchQuit:
			return
		}
	}
}
