// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/kodexcore/kodex/events"
	"github.com/kodexcore/kodex/hooks"
	"github.com/kodexcore/kodex/user"
	"github.com/kodexcore/kodex/validate"
)

// Transactor is implemented by a repository that can run a function
// inside a single atomic transaction. UpdateUserBatch uses it, when
// available, to guarantee that a constraint violation on any sub-update
// aborts the whole batch. A repository that doesn't implement it still
// works; batches then apply sequentially without that guarantee.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Success is returned when an update command applied cleanly (possibly
// with an empty ChangeSet, if every requested value already matched the
// current state).
type Success struct {
	User    *user.User
	Changes ChangeSet
}

// Processor applies update commands: hook chain, change detection, and
// atomic persistence, translating storage failures into the typed
// Failure variants the caller matches against.
type Processor struct {
	repo       user.Repository
	emailV     *validate.EmailValidator
	phoneV     *validate.PhoneValidator
	attributeV *validate.AttributeValidator
	userHook   *hooks.Chain[UpdateUserFields]
	profHook   *hooks.Chain[UpdateProfileFields]
	attrHook   *hooks.Chain[UpdateAttributes]
	bus        *events.Bus
}

// NewProcessor wires an update processor. Any hook chain may be nil to
// fall back to a no-op fail-fast chain; bus may be nil to disable event
// publication.
func NewProcessor(
	repo user.Repository,
	emailV *validate.EmailValidator,
	phoneV *validate.PhoneValidator,
	attributeV *validate.AttributeValidator,
	userHook *hooks.Chain[UpdateUserFields],
	profHook *hooks.Chain[UpdateProfileFields],
	attrHook *hooks.Chain[UpdateAttributes],
	bus *events.Bus,
) *Processor {
	if userHook == nil {
		userHook = hooks.NewChain[UpdateUserFields](hooks.FailFast)
	}
	if profHook == nil {
		profHook = hooks.NewChain[UpdateProfileFields](hooks.FailFast)
	}
	if attrHook == nil {
		attrHook = hooks.NewChain[UpdateAttributes](hooks.FailFast)
	}
	return &Processor{
		repo: repo, emailV: emailV, phoneV: phoneV, attributeV: attributeV,
		userHook: userHook, profHook: profHook, attrHook: attrHook, bus: bus,
	}
}

// ApplyUserFields loads the current user, runs the beforeUserUpdate hook
// chain, detects real changes, and persists them.
func (p *Processor) ApplyUserFields(ctx context.Context, cmd UpdateUserFields) (*Success, error) {
	cur, err := p.repo.GetByID(ctx, cmd.RealmID, cmd.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, &UnknownError{Message: "load user", Err: err}
	}

	cmd, err = p.userHook.Run(ctx, cmd)
	if err != nil {
		return nil, &ValidationFailedError{Errors: []validate.FieldError{{Code: "hook.rejected", Message: err.Error()}}}
	}

	changes := ChangeSet{}
	next := *cur

	if cmd.Email.State() == Set {
		if p.emailV != nil {
			result := p.emailV.Validate(cmd.Email.Value())
			if len(result.Errors) > 0 {
				return nil, &ValidationFailedError{Errors: result.Errors}
			}
			cmd = UpdateUserFields{RealmID: cmd.RealmID, UserID: cmd.UserID, Email: SetField(result.Email), Phone: cmd.Phone, Status: cmd.Status}
		}
		if cur.Email == nil || *cur.Email != cmd.Email.Value() {
			newEmail := cmd.Email.Value()
			changes["email"] = Change{Old: cur.Email, New: newEmail}
			next.Email = &newEmail
		}
	} else if cmd.Email.State() == Clear {
		if cur.Email != nil {
			changes["email"] = Change{Old: cur.Email, New: nil}
			next.Email = nil
		}
	}

	if cmd.Phone.State() == Set {
		if p.phoneV != nil {
			result := p.phoneV.Validate(cmd.Phone.Value())
			if len(result.Errors) > 0 {
				return nil, &ValidationFailedError{Errors: result.Errors}
			}
			cmd = UpdateUserFields{RealmID: cmd.RealmID, UserID: cmd.UserID, Email: cmd.Email, Phone: SetField(result.Phone), Status: cmd.Status}
		}
		if cur.Phone == nil || *cur.Phone != cmd.Phone.Value() {
			newPhone := cmd.Phone.Value()
			changes["phone"] = Change{Old: cur.Phone, New: newPhone}
			next.Phone = &newPhone
		}
	} else if cmd.Phone.State() == Clear {
		if cur.Phone != nil {
			changes["phone"] = Change{Old: cur.Phone, New: nil}
			next.Phone = nil
		}
	}

	if cmd.Status.State() == Set && cmd.Status.Value() != cur.Status {
		changes["status"] = Change{Old: cur.Status, New: cmd.Status.Value()}
		next.Status = cmd.Status.Value()
	}

	if len(changes) == 0 {
		return &Success{User: cur, Changes: changes}, nil
	}

	if err := p.repo.Update(ctx, &next); err != nil {
		return nil, mapRepoError(err)
	}

	p.publishUserUpdated(cmd.RealmID, cmd.UserID, changes)
	return &Success{User: &next, Changes: changes}, nil
}

// ApplyProfileFields applies a profile update the same way ApplyUserFields
// does for user fields.
func (p *Processor) ApplyProfileFields(ctx context.Context, cmd UpdateProfileFields) (*Success, error) {
	cur, err := p.repo.GetByID(ctx, cmd.RealmID, cmd.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, &UnknownError{Message: "load user", Err: err}
	}

	profile, err := p.repo.GetProfile(ctx, cmd.RealmID, cmd.UserID)
	if err != nil {
		if errors.Is(err, user.ErrProfileNotFound) {
			profile = &user.Profile{UserID: cmd.UserID}
		} else {
			return nil, &UnknownError{Message: "load profile", Err: err}
		}
	}

	cmd, err = p.profHook.Run(ctx, cmd)
	if err != nil {
		return nil, &ValidationFailedError{Errors: []validate.FieldError{{Code: "hook.rejected", Message: err.Error()}}}
	}

	changes := ChangeSet{}
	next := *profile
	applyStringField(changes, "firstName", cmd.FirstName, &next.FirstName)
	applyStringField(changes, "lastName", cmd.LastName, &next.LastName)
	applyStringField(changes, "address", cmd.Address, &next.Address)
	applyStringField(changes, "pictureUrl", cmd.PictureURL, &next.PictureURL)

	if len(changes) == 0 {
		return &Success{User: cur, Changes: changes}, nil
	}

	next.UserID = cmd.UserID
	if err := p.repo.UpsertProfile(ctx, &next); err != nil {
		return nil, mapRepoError(err)
	}

	p.publishUserUpdated(cmd.RealmID, cmd.UserID, changes)
	return &Success{User: cur, Changes: changes}, nil
}

func applyStringField(changes ChangeSet, name string, f Field[string], dst *string) {
	switch f.State() {
	case Set:
		if *dst != f.Value() {
			changes[name] = Change{Old: *dst, New: f.Value()}
			*dst = f.Value()
		}
	case Clear:
		if *dst != "" {
			changes[name] = Change{Old: *dst, New: ""}
			*dst = ""
		}
	}
}

// ApplyAttributes resolves an ordered attribute-operation sequence (a
// ReplaceAll anywhere in the sequence supersedes every other operation)
// and persists the result.
func (p *Processor) ApplyAttributes(ctx context.Context, cmd UpdateAttributes) (*Success, error) {
	cur, err := p.repo.GetByID(ctx, cmd.RealmID, cmd.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, &UnknownError{Message: "load user", Err: err}
	}

	cmd, err = p.attrHook.Run(ctx, cmd)
	if err != nil {
		return nil, &ValidationFailedError{Errors: []validate.FieldError{{Code: "hook.rejected", Message: err.Error()}}}
	}

	replaced := false
	next := map[string]any{}
	for k, v := range cur.CustomAttributes {
		next[k] = v
	}

	lastReplaceAll := -1
	for i, op := range cmd.Ops {
		if op.Kind == AttrReplaceAll {
			lastReplaceAll = i
		}
	}

	if lastReplaceAll >= 0 {
		replaced = true
		next = map[string]any{}
		for k, v := range cmd.Ops[lastReplaceAll].All {
			next[k] = v
		}
	} else {
		for _, op := range cmd.Ops {
			switch op.Kind {
			case AttrSet:
				next[op.Key] = op.Value
			case AttrRemove:
				delete(next, op.Key)
			}
		}
	}

	if p.attributeV != nil {
		if errs := p.attributeV.Validate(next); len(errs) > 0 {
			return nil, &ValidationFailedError{Errors: errs}
		}
	}

	changes := diffAttributes(cur.CustomAttributes, next)
	if len(changes) == 0 {
		return &Success{User: cur, Changes: changes}, nil
	}

	if err := p.repo.SetCustomAttributes(ctx, cmd.RealmID, cmd.UserID, next); err != nil {
		return nil, mapRepoError(err)
	}

	evtType := events.TypeUserAttrsUpdated
	if replaced {
		evtType = events.TypeUserAttrsReplaced
	}
	if p.bus != nil {
		evt := events.New(evtType, cmd.RealmID, events.SeverityInfo)
		evt.ActorType = events.ActorSystem
		evt.TargetID = cmd.UserID
		evt.TargetType = "user"
		evt.Result = events.ResultSuccess
		p.bus.Publish(evt)
	}

	cur.CustomAttributes = next
	return &Success{User: cur, Changes: changes}, nil
}

func diffAttributes(old, updated map[string]any) ChangeSet {
	changes := ChangeSet{}
	for k, v := range updated {
		if ov, ok := old[k]; !ok || !equalAny(ov, v) {
			changes[k] = Change{Old: old[k], New: v}
		}
	}
	for k, v := range old {
		if _, ok := updated[k]; !ok {
			changes[k] = Change{Old: v, New: nil}
		}
	}
	return changes
}

func equalAny(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// ApplyBatch runs every item's user-field update within a single
// transaction when the repository supports Transactor; otherwise it
// applies items sequentially.
func (p *Processor) ApplyBatch(ctx context.Context, batch UpdateUserBatch) ([]*Success, error) {
	if tx, ok := p.repo.(Transactor); ok {
		var results []*Success
		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, item := range batch.Items {
				res, err := p.ApplyUserFields(ctx, item.Fields)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	var results []*Success
	for _, item := range batch.Items {
		res, err := p.ApplyUserFields(ctx, item.Fields)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Processor) publishUserUpdated(realmID, userID string, changes ChangeSet) {
	if p.bus == nil {
		return
	}
	evt := events.New(events.TypeUserUpdated, realmID, events.SeverityInfo)
	evt.ActorType = events.ActorSystem
	evt.TargetID = userID
	evt.TargetType = "user"
	evt.Result = events.ResultSuccess
	for field, c := range changes {
		evt.Payload[field] = fmt.Sprintf("%v -> %v", c.Old, c.New)
	}
	p.bus.Publish(evt)
}

func mapRepoError(err error) error {
	if errors.Is(err, user.ErrEmailAlreadyExists) {
		return &ConstraintViolationError{Field: "email", Message: err.Error()}
	}
	if errors.Is(err, user.ErrPhoneAlreadyExists) {
		return &ConstraintViolationError{Field: "phone", Message: err.Error()}
	}
	return &UnknownError{Message: "persist update", Err: err}
}
