package doctools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pagesmith/pagesmith/internal/tool"
)

type listUsersArgs struct {
	StartCursor string `json:"start_cursor,omitempty" jsonschema:"cursor from a previous response"`
	PageSize    int    `json:"page_size,omitempty" jsonschema:"users per page, at most 100"`
}

var listUsersSchema = tool.MustSchema[listUsersArgs]()

type listUsers struct{ d *Deps }

func (*listUsers) Name() string                { return "list_users" }
func (*listUsers) Description() string         { return "List the users of the workspace, one page at a time." }
func (*listUsers) Schema() *jsonschema.Schema   { return listUsersSchema }
func (*listUsers) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *listUsers) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[listUsersArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	users, err := t.d.API.ListUsers(ctx, a.StartCursor, a.PageSize)
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(users)
}

type retrieveUserArgs struct {
	UserID string `json:"user_id" jsonschema:"ID of the user"`
}

var retrieveUserSchema = tool.MustSchema[retrieveUserArgs]()

type retrieveUser struct{ d *Deps }

func (*retrieveUser) Name() string                { return "retrieve_user" }
func (*retrieveUser) Description() string         { return "Retrieve a user by ID." }
func (*retrieveUser) Schema() *jsonschema.Schema   { return retrieveUserSchema }
func (*retrieveUser) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *retrieveUser) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[retrieveUserArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("user_id", a.UserID); err != nil {
		return tool.Output{}, err
	}
	u, err := t.d.API.RetrieveUser(ctx, a.UserID)
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(u)
}

type getMeArgs struct{}

var getMeSchema = tool.MustSchema[getMeArgs]()

type getMe struct{ d *Deps }

func (*getMe) Name() string                { return "get_me" }
func (*getMe) Description() string         { return "Retrieve the bot user behind the integration token." }
func (*getMe) Schema() *jsonschema.Schema   { return getMeSchema }
func (*getMe) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *getMe) Execute(ctx context.Context, _ json.RawMessage) (tool.Output, error) {
	u, err := t.d.API.Me(ctx)
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(u)
}
