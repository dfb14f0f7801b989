package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-accounts-nosql/internal/config"
	"github.com/go-accounts-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAPI struct{ mock.Mock }

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

// --- helpers ---

var testTables = config.DynamoTables{
	Users:              "users",
	ActivationRequests: "activation_requests",
	ResetRequests:      "password_reset_requests",
	UniqueKeys:         "unique_keys",
}

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func marshal(t *testing.T, v interface{}) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

// --- UserRepo ---

func TestUserRepo_GetByEmail(t *testing.T) {
	api := new(mockAPI)
	repo := NewUserRepo(api, "users")
	u := &domain.User{UserID: "01H", Email: "a@b.com", PasswordHash: "h", Status: domain.UserStatusActive}

	api.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		key, _ := in.Key[fieldEmail].(*types.AttributeValueMemberS)
		return aws.ToString(in.TableName) == "users" && key != nil && key.Value == "a@b.com" && aws.ToBool(in.ConsistentRead)
	})).Return(&dynamodb.GetItemOutput{Item: marshal(t, u)}, nil)

	got, err := repo.GetByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "01H", got.UserID)
	assert.Equal(t, domain.UserStatusActive, got.Status)
	api.AssertExpectations(t)
}

func TestUserRepo_GetByEmail_Missing(t *testing.T) {
	api := new(mockAPI)
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := NewUserRepo(api, "users").GetByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_UpdatePasswordHash_MissingUser(t *testing.T) {
	api := new(mockAPI)
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return aws.ToString(in.ConditionExpression) == "attribute_exists(#pk)" && in.ExpressionAttributeNames["#pk"] == fieldEmail
	})).Return(nil, &types.ConditionalCheckFailedException{})

	err := NewUserRepo(api, "users").UpdatePasswordHash(context.Background(), "a@b.com", "h", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- ActivationRepo ---

func TestActivationRepo_CreateWithUser_WritesThreeItems(t *testing.T) {
	api := new(mockAPI)
	repo := NewActivationRepo(api, testTables)
	u := &domain.User{UserID: "01H", Email: "a@b.com", Status: domain.UserStatusPending}
	a := &domain.ActivationRequest{Code: "abc", Email: "a@b.com", UserID: "01H", ExpiresAt: 10}

	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		if len(in.TransactItems) != 3 {
			return false
		}
		guard, _ := in.TransactItems[2].Put.Item[fieldUniqueKey].(*types.AttributeValueMemberS)
		owner, _ := in.TransactItems[2].Put.Item[fieldEmail].(*types.AttributeValueMemberS)
		return aws.ToString(in.TransactItems[0].Put.TableName) == "users" &&
			aws.ToString(in.TransactItems[1].Put.TableName) == "activation_requests" &&
			guard != nil && guard.Value == "activation_code#abc" &&
			owner != nil && owner.Value == "a@b.com"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, repo.CreateWithUser(context.Background(), u, a))
	api.AssertExpectations(t)
}

func TestActivationRepo_CreateWithUser_Duplicate(t *testing.T) {
	api := new(mockAPI)
	api.On("TransactWriteItems", mock.Anything, mock.Anything).
		Return(nil, cancelled("ConditionalCheckFailed", "None", "None"))

	err := NewActivationRepo(api, testTables).CreateWithUser(context.Background(),
		&domain.User{Email: "a@b.com"}, &domain.ActivationRequest{Code: "abc", Email: "a@b.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func guardLookup(code string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		key, _ := in.Key[fieldUniqueKey].(*types.AttributeValueMemberS)
		return aws.ToString(in.TableName) == "unique_keys" && key != nil &&
			key.Value == "activation_code#"+code && aws.ToBool(in.ConsistentRead)
	})
}

func requestLookup(email string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		key, _ := in.Key[fieldEmail].(*types.AttributeValueMemberS)
		return aws.ToString(in.TableName) == "activation_requests" && key != nil &&
			key.Value == email && aws.ToBool(in.ConsistentRead)
	})
}

func TestActivationRepo_GetByCode_ConsistentReadThroughGuard(t *testing.T) {
	api := new(mockAPI)
	a := &domain.ActivationRequest{Code: "abc", Email: "a@b.com", UserID: "01H"}
	guard := map[string]types.AttributeValue{fieldUniqueKey: strVal("activation_code#abc"), fieldEmail: strVal("a@b.com")}
	api.On("GetItem", mock.Anything, guardLookup("abc")).Return(&dynamodb.GetItemOutput{Item: guard}, nil)
	api.On("GetItem", mock.Anything, requestLookup("a@b.com")).Return(&dynamodb.GetItemOutput{Item: marshal(t, a)}, nil)
	api.On("GetItem", mock.Anything, guardLookup("zzz")).Return(&dynamodb.GetItemOutput{}, nil)

	repo := NewActivationRepo(api, testTables)
	got, err := repo.GetByCode(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Email)

	_, err = repo.GetByCode(context.Background(), "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	api.AssertExpectations(t)
}

func TestActivationRepo_GetByCode_StaleGuard(t *testing.T) {
	api := new(mockAPI)
	current := &domain.ActivationRequest{Code: "new", Email: "a@b.com"}
	guard := map[string]types.AttributeValue{fieldUniqueKey: strVal("activation_code#old"), fieldEmail: strVal("a@b.com")}
	api.On("GetItem", mock.Anything, guardLookup("old")).Return(&dynamodb.GetItemOutput{Item: guard}, nil)
	api.On("GetItem", mock.Anything, requestLookup("a@b.com")).Return(&dynamodb.GetItemOutput{Item: marshal(t, current)}, nil)

	_, err := NewActivationRepo(api, testTables).GetByCode(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActivationRepo_Reissue_ReplacesExpiredRequest(t *testing.T) {
	api := new(mockAPI)
	prev := &domain.ActivationRequest{Code: "old", Email: "a@b.com"}
	next := &domain.ActivationRequest{Code: "new", Email: "a@b.com", ExpiresAt: 99}

	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		if len(in.TransactItems) != 4 {
			return false
		}
		put, check := in.TransactItems[0].Put, in.TransactItems[1].ConditionCheck
		guard, _ := in.TransactItems[2].Put.Item[fieldUniqueKey].(*types.AttributeValueMemberS)
		oldGuard, _ := in.TransactItems[3].Delete.Key[fieldUniqueKey].(*types.AttributeValueMemberS)
		oldCode, _ := put.ExpressionAttributeValues[":code"].(*types.AttributeValueMemberS)
		return aws.ToString(put.ConditionExpression) == "#code = :code AND attribute_not_exists(#consumed)" &&
			oldCode != nil && oldCode.Value == "old" &&
			aws.ToString(check.TableName) == "users" &&
			aws.ToString(check.ConditionExpression) == "#status = :pending" &&
			guard != nil && guard.Value == "activation_code#new" &&
			oldGuard != nil && oldGuard.Value == "activation_code#old"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, NewActivationRepo(api, testTables).Reissue(context.Background(), prev, next))
	api.AssertExpectations(t)
}

func TestActivationRepo_Reissue_SweptRequest(t *testing.T) {
	api := new(mockAPI)
	next := &domain.ActivationRequest{Code: "new", Email: "a@b.com"}

	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		return len(in.TransactItems) == 3 &&
			aws.ToString(in.TransactItems[0].Put.ConditionExpression) == "attribute_not_exists(#pk)"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, NewActivationRepo(api, testTables).Reissue(context.Background(), nil, next))
	api.AssertExpectations(t)
}

func TestActivationRepo_Reissue_FailureMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"code taken", cancelled("None", "None", "ConditionalCheckFailed", "None"), domain.ErrAlreadyExists},
		{"user no longer pending", cancelled("None", "ConditionalCheckFailed", "None", "None"), domain.ErrConflict},
		{"request replaced", cancelled("ConditionalCheckFailed", "None", "None", "None"), domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, tt.err)

			err := NewActivationRepo(api, testTables).Reissue(context.Background(),
				&domain.ActivationRequest{Code: "old", Email: "a@b.com"},
				&domain.ActivationRequest{Code: "new", Email: "a@b.com"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestActivationRepo_Consume_FailureMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"user no longer pending", cancelled("None", "ConditionalCheckFailed"), domain.ErrConflict},
		{"code consumed or expired", cancelled("ConditionalCheckFailed", "None"), domain.ErrNotFound},
		{"both contended", cancelled("TransactionConflict", "TransactionConflict"), domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, tt.err)

			err := NewActivationRepo(api, testTables).Consume(context.Background(),
				&domain.ActivationRequest{Code: "abc", Email: "a@b.com"}, time.Now())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestActivationRepo_Consume_Conditions(t *testing.T) {
	api := new(mockAPI)
	now := time.Unix(1_700_000_000, 0)
	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		consume, activate := in.TransactItems[0].Update, in.TransactItems[1].Update
		nowVal, _ := consume.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN)
		return nowVal != nil && nowVal.Value == "1700000000" &&
			aws.ToString(activate.ConditionExpression) == "#status = :pending"
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	err := NewActivationRepo(api, testTables).Consume(context.Background(),
		&domain.ActivationRequest{Code: "abc", Email: "a@b.com"}, now)
	require.NoError(t, err)
	api.AssertExpectations(t)
}

// --- ResetRepo ---

func TestResetRepo_Put_Collision(t *testing.T) {
	api := new(mockAPI)
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

	err := NewResetRepo(api, testTables).Put(context.Background(), &domain.PasswordResetRequest{Code: "r"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestResetRepo_Redeem_FailureMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"code unusable", cancelled("ConditionalCheckFailed", "None"), domain.ErrConflict},
		{"account missing", cancelled("None", "ConditionalCheckFailed"), domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, tt.err)

			err := NewResetRepo(api, testTables).Redeem(context.Background(),
				&domain.PasswordResetRequest{Code: "r", Email: "a@b.com"}, "h", time.Now())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResetRepo_Redeem_PassesThroughOtherErrors(t *testing.T) {
	api := new(mockAPI)
	boom := errors.New("throttled")
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, boom)

	err := NewResetRepo(api, testTables).Redeem(context.Background(),
		&domain.PasswordResetRequest{Code: "r", Email: "a@b.com"}, "h", time.Now())
	assert.ErrorIs(t, err, boom)
}
