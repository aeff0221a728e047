package engine

import (
	"maps"

	"github.com/shaiso/Relay/internal/domain"
)

// InputReference — имя ссылки на исходный prompt workflow.
// Шаг с таким же именем перекрывает её.
const InputReference = "input"

// ExecutionContext — накопленное состояние одного run.
//
// Хранит историю результатов в порядке выполнения и отображение
// имя шага → текст вывода. В отображение попадают только успешные шаги.
//
// Контекст принадлежит одному run и не разделяется между горутинами.
type ExecutionContext struct {
	input   string
	results []domain.StepResult
	outputs map[string]string

	// inputShadowed — в workflow есть шаг с именем InputReference.
	inputShadowed bool
}

// NewExecutionContext создаёт контекст с исходным prompt.
func NewExecutionContext(input string) *ExecutionContext {
	return &ExecutionContext{
		input:   input,
		outputs: make(map[string]string),
	}
}

// ShadowInput отключает разрешение InputReference в исходный prompt.
// Вызывается, когда в workflow есть шаг с именем InputReference:
// до его успешного выполнения ссылка не разрешается.
func (c *ExecutionContext) ShadowInput() {
	c.inputShadowed = true
}

// Input возвращает исходный prompt.
func (c *ExecutionContext) Input() string {
	return c.input
}

// Append добавляет результат шага в историю.
// Вывод регистрируется по имени только при успехе.
func (c *ExecutionContext) Append(result domain.StepResult) {
	c.results = append(c.results, result)
	if result.Succeeded() {
		c.outputs[result.StepName] = result.OutputText
	}
}

// Output возвращает вывод успешного шага по имени.
func (c *ExecutionContext) Output(name string) (string, bool) {
	v, ok := c.outputs[name]
	return v, ok
}

// Lookup разрешает ссылку шаблона: сначала шаги, затем InputReference.
func (c *ExecutionContext) Lookup(name string) (string, bool) {
	if v, ok := c.outputs[name]; ok {
		return v, true
	}
	if name == InputReference && !c.inputShadowed {
		return c.input, true
	}
	return "", false
}

// Latest возвращает последний успешный результат.
func (c *ExecutionContext) Latest() (domain.StepResult, bool) {
	for i := len(c.results) - 1; i >= 0; i-- {
		if c.results[i].Succeeded() {
			return c.results[i], true
		}
	}
	return domain.StepResult{}, false
}

// LatestOutput возвращает текущий контекст для следующего шага:
// вывод последнего успешного шага или исходный prompt.
func (c *ExecutionContext) LatestOutput() string {
	if r, ok := c.Latest(); ok {
		return r.OutputText
	}
	return c.input
}

// FinalOutput возвращает вывод последнего успешного шага или пустую строку.
func (c *ExecutionContext) FinalOutput() string {
	if r, ok := c.Latest(); ok {
		return r.OutputText
	}
	return ""
}

// Results возвращает копию истории.
func (c *ExecutionContext) Results() []domain.StepResult {
	out := make([]domain.StepResult, len(c.results))
	copy(out, c.results)
	return out
}

// Outputs возвращает копию отображения имя → вывод.
func (c *ExecutionContext) Outputs() map[string]string {
	return maps.Clone(c.outputs)
}

// Len возвращает количество выполненных шагов.
func (c *ExecutionContext) Len() int {
	return len(c.results)
}
