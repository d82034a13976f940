package dispatch

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// KeyboardInput читает метки клавиш построчно (например, из терминала).
// Терминал не сообщает об отпускании, поэтому каждая строка — только нажатие.
type KeyboardInput struct {
	r io.Reader
}

func NewKeyboardInput(r io.Reader) *KeyboardInput {
	return &KeyboardInput{r: r}
}

// Run читает строки до конца ввода или отмены ctx.
// Пустые строки пропускаются.
func (k *KeyboardInput) Run(ctx context.Context, handle func(Event)) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(k.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			for _, key := range strings.Fields(line) {
				handle(Event{Source: SourceKeyboard, Key: key, Action: Press})
			}
		}
	}
}
