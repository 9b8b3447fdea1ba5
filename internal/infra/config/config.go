// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (терминального MTProto-клиента). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. предоставляет потокобезопасный доступ к результатам через R/W мьютекс.
//
// Бизнес-контекст: конфиг управляет подключением к Telegram API, путями
// хранения сессии и кэша, лимитами очереди отправки и её ретраями, методом
// входа по умолчанию и лимитами кэша чатов/сообщений.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env). Это
// «операционные» настройки запуска: учётные данные MTProto, пути хранения,
// лимиты очереди отправки и кэша, метод авторизации по умолчанию.
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
// В рантайме по месту использования предполагается, что EnvConfig последователен.
type EnvConfig struct {
	APIID     int
	APIHash   string
	LogLevel  string
	LogFormat string
	LogFile   string // optional; empty disables file rotation

	SessionPath string
	StatePath   string

	UpdateBuffer int

	SendQueueLimit       int
	SendRetryMaxAttempts int // 0 ⇒ unlimited
	SendRetryBaseDelayMS int64
	SendRetryMaxDelayMS  int64

	AuthDefaultMethod string // "phone" | "qr"

	CacheMaxChats           int // 0 ⇒ disabled
	CacheMaxMessagesPerChat int // 0 ⇒ disabled
	CacheMaxBytes           int64 // 0 ⇒ disabled
	CacheFlushDebounceMS    int64
	CacheDBPath             string

	Timezone string
}

// Config хранит конфигурацию среды.
//
// Потокобезопасность: публичные геттеры берут RLock.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения.
const (
	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultSessionPath = "data/telegram.session"
	defaultStatePath   = "data/state.db"

	defaultUpdateBuffer = 1024

	defaultSendQueueLimit       = 256
	defaultSendRetryMaxAttempts = 0 // unlimited
	defaultSendRetryBaseDelayMS = 500
	defaultSendRetryMaxDelayMS  = 30_000

	defaultAuthMethod = "phone"

	defaultCacheMaxChats           = 0
	defaultCacheMaxMessagesPerChat = 0
	defaultCacheMaxBytes           = 0
	defaultCacheFlushDebounceMS    = 1_000
	defaultCacheDBPath             = "data/cache.db"

	defaultTimezone = "UTC"
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load — точка входа для инициализации глобальной конфигурации всего
// приложения. При первом вызове читает .env, формирует EnvConfig и
// фиксирует результат в singleton cfgInstance.
//
// Повторный вызов запрещён (возвращается ошибка), чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	if cfgInstance == nil {
		cfgInstance = &Config{}
	}
	cfgInstance.mu.Lock()
	defer cfgInstance.mu.Unlock()
	newCfg, err := loadConfig(envPath)
	cfgInstance = newCfg
	cfgDone = true
	return err
}

// loadConfig выполняет фактическую загрузку/валидацию без установки
// глобального состояния. Удобно для тестов: можно собрать временный Config
// и проверить его.
func loadConfig(envPath string) (*Config, error) {
	// .env не обязателен: если файла нет, переменные окружения процесса уже
	// главенствуют, и ошибку загрузки можно игнорировать только когда файл
	// отсутствует; если файл есть, но битый — считаем это фатальной ошибкой
	// конфигурации, как и в исходной схеме.
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	apiID, err := parseRequiredInt("TELEGRAM_API_ID")
	if err != nil {
		return nil, err
	}

	apiHash := strings.TrimSpace(os.Getenv("TELEGRAM_API_HASH"))
	if apiHash == "" {
		return nil, errors.New("env TELEGRAM_API_HASH must be set")
	}

	var warnings []string

	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), &warnings)
	logFormat := sanitizeLogFormat(os.Getenv("LOG_FORMAT"), &warnings)
	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	sessionPath := sanitizeFile("SESSION_PATH", os.Getenv("SESSION_PATH"), defaultSessionPath, &warnings)
	statePath := sanitizeFile("STATE_PATH", os.Getenv("STATE_PATH"), defaultStatePath, &warnings)
	updateBuffer := parseIntDefault("UPDATE_BUFFER", defaultUpdateBuffer, greaterThanZero, &warnings)
	sendQueueLimit := parseIntDefault("SEND_QUEUE_LIMIT", defaultSendQueueLimit, greaterThanZero, &warnings)
	sendRetryMaxAttempts := parseIntDefault("SEND_RETRY_MAX_ATTEMPTS", defaultSendRetryMaxAttempts, nonNegative, &warnings)
	sendRetryBaseDelayMS := parseInt64Default("SEND_RETRY_BASE_DELAY_MS", defaultSendRetryBaseDelayMS, nonNegative64, &warnings)
	sendRetryMaxDelayMS := parseInt64Default("SEND_RETRY_MAX_DELAY_MS", defaultSendRetryMaxDelayMS, nonNegative64, &warnings)
	if sendRetryMaxDelayMS < sendRetryBaseDelayMS {
		appendWarningf(&warnings, "env SEND_RETRY_MAX_DELAY_MS (%d) is below SEND_RETRY_BASE_DELAY_MS (%d); raising it to match",
			sendRetryMaxDelayMS, sendRetryBaseDelayMS)
		sendRetryMaxDelayMS = sendRetryBaseDelayMS
	}
	authMethod := sanitizeAuthMethod(os.Getenv("AUTH_DEFAULT_METHOD"), &warnings)
	cacheMaxChats := parseIntDefault("CACHE_MAX_CHATS", defaultCacheMaxChats, nonNegative, &warnings)
	cacheMaxMessagesPerChat := parseIntDefault("CACHE_MAX_MESSAGES_PER_CHAT", defaultCacheMaxMessagesPerChat, nonNegative, &warnings)
	cacheMaxBytes := parseInt64Default("CACHE_MAX_BYTES", defaultCacheMaxBytes, nonNegative64, &warnings)
	cacheFlushDebounceMS := parseInt64Default("CACHE_FLUSH_DEBOUNCE_MS", defaultCacheFlushDebounceMS, nonNegative64, &warnings)
	cacheDBPath := sanitizeFile("CACHE_DB_PATH", os.Getenv("CACHE_DB_PATH"), defaultCacheDBPath, &warnings)
	timezone := sanitizeTimezoneFlexible(os.Getenv("TIMEZONE"), defaultTimezone, &warnings)

	env := EnvConfig{
		APIID:                   apiID,
		APIHash:                 apiHash,
		LogLevel:                logLevel,
		LogFormat:               logFormat,
		LogFile:                 logFile,
		SessionPath:             sessionPath,
		StatePath:               statePath,
		UpdateBuffer:            updateBuffer,
		SendQueueLimit:          sendQueueLimit,
		SendRetryMaxAttempts:    sendRetryMaxAttempts,
		SendRetryBaseDelayMS:    sendRetryBaseDelayMS,
		SendRetryMaxDelayMS:     sendRetryMaxDelayMS,
		AuthDefaultMethod:       authMethod,
		CacheMaxChats:           cacheMaxChats,
		CacheMaxMessagesPerChat: cacheMaxMessagesPerChat,
		CacheMaxBytes:           cacheMaxBytes,
		CacheFlushDebounceMS:    cacheFlushDebounceMS,
		CacheDBPath:             cacheDBPath,
		Timezone:                timezone,
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке
// .env (например, когда подставлено значение по умолчанию). Возвращается
// копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый
// снимок на момент последней загрузки; для обновления надо перечитать
// конфиг целиком.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseRequiredInt читает обязательную целочисленную переменную окружения
// name. Если переменная не задана или не является корректным числом —
// возвращает ошибку. Используется для критичных параметров, без которых
// приложение не стартует.
func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет
// предупреждение. Это позволяет не падать на несущественных настройках и
// иметь дефолты.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// parseInt64Default — как parseIntDefault, но для 64-битных значений
// (задержки в миллисекундах, байтовые бюджеты).
func parseInt64Default(name string, defaultVal int64, validator func(int64) bool, warnings *[]string) int64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция для накопления предупреждений о
// некорректных переменных окружения. Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

// greaterThanZero/nonNegative — простые валидаторы чисел. Используются в
// parseIntDefault, чтобы навязать смысловые ограничения без падения
// приложения.
func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }
func nonNegative64(v int64) bool { return v >= 0 }

// sanitizeLogLevel нормализует LOG_LEVEL и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultLogLevel.
func sanitizeLogLevel(level string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultLogLevel)
		return defaultLogLevel
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultLogLevel)
		return defaultLogLevel
	}
}

// sanitizeLogFormat ограничивает LOG_FORMAT набором {console, json},
// соответствующим двум zapcore-энкодерам логгера.
func sanitizeLogFormat(format string, warnings *[]string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		appendWarningf(warnings, "env LOG_FORMAT is not set; using default %q", defaultLogFormat)
		return defaultLogFormat
	}
	switch f {
	case "console", "json":
		return f
	default:
		appendWarningf(warnings, "env LOG_FORMAT value %q is invalid; using default %q", format, defaultLogFormat)
		return defaultLogFormat
	}
}

// sanitizeAuthMethod ограничивает AUTH_DEFAULT_METHOD набором {phone, qr}.
func sanitizeAuthMethod(method string, warnings *[]string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		appendWarningf(warnings, "env AUTH_DEFAULT_METHOD is not set; using default %q", defaultAuthMethod)
		return defaultAuthMethod
	}
	switch m {
	case "phone", "qr":
		return m
	default:
		appendWarningf(warnings, "env AUTH_DEFAULT_METHOD value %q is invalid; using default %q", method, defaultAuthMethod)
		return defaultAuthMethod
	}
}

// sanitizeFile возвращает валидное имя файла конфигурации. Если переменная
// не задана, подставляет fallback и пишет предупреждение.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// ParseLocation разбирает либо IANA-таймзону (например, "Europe/Moscow"),
// либо UTC-смещение (например, "+03:00", "-0700", "UTC+3", "GMT-04:30").
// Возвращает *time.Location или ошибку.
func ParseLocation(value string) (*time.Location, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("empty timezone")
	}
	if loc, err := time.LoadLocation(v); err == nil {
		return loc, nil
	}
	if loc, ok := parseUTCOffsetToLocation(v); ok {
		return loc, nil
	}
	return nil, fmt.Errorf("invalid timezone %q: not an IANA name or UTC offset", value)
}

// sanitizeTimezoneFlexible проверяет, что значение — корректная IANA-зона
// или UTC-смещение. При неудаче возвращает значение по умолчанию и
// добавляет предупреждение.
func sanitizeTimezoneFlexible(value string, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env TIMEZONE is not set; using default %q", fallback)
		return fallback
	}
	if _, err := ParseLocation(v); err != nil {
		appendWarningf(warnings, "timezone %q is invalid; using default %q", v, fallback)
		return fallback
	}
	return v
}

// parseUTCOffsetToLocation парсит строки вида "+03:00", "-0700", "UTC+3",
// "GMT-04:30" или "Z". Возвращает фиксированную таймзону и ok=true при
// успешном разборе.
func parseUTCOffsetToLocation(value string) (*time.Location, bool) {
	v := strings.TrimSpace(strings.ToUpper(value))
	if v == "Z" || v == "UTC" || v == "GMT" {
		return time.FixedZone("UTC+00:00", 0), true
	}
	v = strings.TrimPrefix(v, "UTC")
	v = strings.TrimPrefix(v, "GMT")
	v = strings.TrimSpace(v)
	re := regexp.MustCompile(`^([+-])\s*(\d{1,2})(?::?(\d{2}))?$`)
	m := re.FindStringSubmatch(v)
	if m == nil {
		return nil, false
	}
	sign := 1
	if m[1] == "-" {
		sign = -1
	}
	hourStr := m[2]
	minStr := m[3]
	hours, err := strconv.Atoi(hourStr)
	if err != nil {
		return nil, false
	}
	mins := 0
	if minStr != "" {
		var err2 error
		mins, err2 = strconv.Atoi(minStr)
		if err2 != nil {
			return nil, false
		}
	}
	if hours < 0 || hours > 14 || mins < 0 || mins > 59 {
		return nil, false
	}
	offset := sign * ((hours * 60 * 60) + (mins * 60))
	name := fmt.Sprintf("UTC%+03d:%02d", sign*hours, mins)
	return time.FixedZone(name, offset), true
}
