// Package program содержит каталог программ стажировки.
// Каталог определяет задания по неделям, список проектов и PDF с деталями.
package program

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
)

// Program - одна программа стажировки.
type Program struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`

	// StageTasks - ссылки или описания заданий по неделям.
	// Длина списка определяет число этапов.
	StageTasks []string `yaml:"stage_tasks"`

	// Units - идентификаторы проектов, из которых считается прогресс.
	Units []string `yaml:"units"`

	// DurationUnits - длительность в условных месяцах по 28 дней.
	DurationUnits int `yaml:"duration_units"`

	// DetailsAttachment - имя PDF с деталями (пусто, если нет).
	DetailsAttachment string `yaml:"details_attachment"`
}

// TotalStages возвращает число еженедельных этапов.
// Пустой список заданий означает значение по умолчанию.
func (p Program) TotalStages(fallback int) int {
	if len(p.StageTasks) > 0 {
		return len(p.StageTasks)
	}
	return fallback
}

// TotalUnits возвращает число проектов, но не меньше одного.
func (p Program) TotalUnits() int {
	if len(p.Units) == 0 {
		return 1
	}
	return len(p.Units)
}

// HasUnit проверяет, что проект принадлежит программе.
// Программа без явного списка принимает единственный проект "final".
func (p Program) HasUnit(unitID string) bool {
	if len(p.Units) == 0 {
		return unitID == DefaultUnit
	}
	for _, u := range p.Units {
		if u == unitID {
			return true
		}
	}
	return false
}

// TaskFor возвращает текст задания для этапа (1-based).
// Индекс за пределами списка прижимается к последнему элементу.
func (p Program) TaskFor(stage int) string {
	if len(p.StageTasks) == 0 {
		return fmt.Sprintf("Week %d assignment", stage)
	}
	idx := stage - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.StageTasks) {
		idx = len(p.StageTasks) - 1
	}
	task := strings.TrimSpace(p.StageTasks[idx])
	if task == "" {
		return fmt.Sprintf("Week %d assignment", stage)
	}
	return task
}

// Validate проверяет программу.
func (p Program) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return shared.NewDomainError("program", "Validate", shared.ErrEmptyValue, "program id is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return shared.NewDomainError("program", "Validate", shared.ErrEmptyValue,
			fmt.Sprintf("program %s: title is required", p.ID))
	}
	if p.DurationUnits <= 0 {
		return shared.NewDomainError("program", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("program %s: duration must be positive", p.ID))
	}
	seen := make(map[string]struct{}, len(p.Units))
	for _, u := range p.Units {
		if _, dup := seen[u]; dup {
			return shared.NewDomainError("program", "Validate", shared.ErrInvalidInput,
				fmt.Sprintf("program %s: duplicate unit %q", p.ID, u))
		}
		seen[u] = struct{}{}
	}
	return nil
}

// DefaultUnit - проект по умолчанию для программ без явного списка.
const DefaultUnit = "final"

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - неизменяемый после создания набор программ.
type Catalog struct {
	programs map[string]Program
}

// NewCatalog создаёт каталог и проверяет каждую программу.
func NewCatalog(programs ...Program) (*Catalog, error) {
	c := &Catalog{programs: make(map[string]Program, len(programs))}
	for _, p := range programs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.programs[p.ID]; dup {
			return nil, shared.NewDomainError("program", "Validate", shared.ErrAlreadyExists,
				fmt.Sprintf("duplicate program %q", p.ID))
		}
		c.programs[p.ID] = p
	}
	return c, nil
}

// Get возвращает программу по ID.
func (c *Catalog) Get(id string) (Program, error) {
	p, ok := c.programs[id]
	if !ok {
		return Program{}, fmt.Errorf("%w: %s", shared.ErrUnknownProgram, id)
	}
	return p, nil
}

// List возвращает программы, отсортированные по ID.
func (c *Catalog) List() []Program {
	out := make([]Program, 0, len(c.programs))
	for _, p := range c.programs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Title возвращает название программы или сам ID для неизвестной программы.
func (c *Catalog) Title(id string) string {
	p, err := c.Get(id)
	if err != nil {
		return id
	}
	return p.Title
}
