package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// ScreenshotStore хранит скриншоты последних ошибок. Когда файлов больше keep,
// самые старые удаляются.
type ScreenshotStore struct {
	dir  string
	keep int
	log  *zap.Logger
	mu   sync.Mutex
}

func NewScreenshotStore(dir string, keep int, log *zap.Logger) *ScreenshotStore {
	if keep <= 0 {
		keep = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScreenshotStore{dir: dir, keep: keep, log: log.Named("screenshots")}
}

// Capture снимает страницу в файл вида <prefix>-<время>.jpg и чистит каталог.
func (s *ScreenshotStore) Capture(page playwright.Page, prefix string) (string, error) {
	if page == nil {
		return "", fmt.Errorf("страница не открыта")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("каталог скриншотов: %w", err)
	}

	name := fmt.Sprintf("%s-%s.jpg", sanitizeName(prefix), time.Now().Format("20060102-150405.000"))
	path := filepath.Join(s.dir, name)

	_, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:    playwright.String(path),
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(60),
	})
	if err != nil {
		return "", fmt.Errorf("скриншот: %w", err)
	}

	if removed, err := Prune(s.dir, s.keep); err != nil {
		s.log.Warn("Не удалось почистить скриншоты", zap.Error(err))
	} else if removed > 0 {
		s.log.Debug("Удалены старые скриншоты", zap.Int("count", removed))
	}

	return path, nil
}

// Prune оставляет в каталоге keep самых новых .jpg файлов.
func Prune(dir string, keep int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	type shot struct {
		path string
		mod  time.Time
	}
	shots := make([]shot, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		shots = append(shots, shot{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}

	if len(shots) <= keep {
		return 0, nil
	}

	sort.Slice(shots, func(i, j int) bool {
		if shots[i].mod.Equal(shots[j].mod) {
			return shots[i].path > shots[j].path
		}
		return shots[i].mod.After(shots[j].mod)
	})

	removed := 0
	for _, sh := range shots[keep:] {
		if err := os.Remove(sh.path); err == nil {
			removed++
		}
	}
	return removed, nil
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
