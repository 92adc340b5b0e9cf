// Package collaborator объединяет клиенты внешних сервисов, к которым бот
// обращается только после проверки доступа: языковую модель и распознавание текста.
package collaborator

import "errors"

// ErrCollaboratorFailure оборачивает любые отказы внешних сервисов.
var ErrCollaboratorFailure = errors.New("collaborator failure")
