package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-accounts-nosql/internal/config"
	"github.com/go-accounts-nosql/internal/domain"
)

// ActivationRepo manages activation requests.
// PK: email. Each code has an "activation_code#<code>" guard item in the
// unique_keys table, written in the same transaction as the request and
// carrying its email. Lookups by code go through the guard.
type ActivationRepo struct {
	client API
	tables config.DynamoTables
}

func NewActivationRepo(client API, tables config.DynamoTables) *ActivationRepo {
	return &ActivationRepo{client: client, tables: tables}
}

// CreateWithUser stores a pending user and its activation request atomically.
// Any uniqueness violation (email or code) yields domain.ErrAlreadyExists and
// leaves nothing written.
func (r *ActivationRepo) CreateWithUser(ctx context.Context, u *domain.User, a *domain.ActivationRequest) error {
	userPut, err := putUser(r.tables.Users, u)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal activation request: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			userPut,
			{Put: &types.Put{
				TableName:                aws.String(r.tables.ActivationRequests),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": fieldEmail},
			}},
			uniqueKeyPut(r.tables.UniqueKeys, codeKey(a.Code), a.Email),
		},
	})
	if _, ok := txFailures(err); ok {
		return fmt.Errorf("account %s: %w", a.Email, domain.ErrAlreadyExists)
	}
	return err
}

// GetByCode resolves the code through its guard item. Both reads are
// strongly consistent, so a code is redeemable as soon as signup returns.
func (r *ActivationRepo) GetByCode(ctx context.Context, code string) (*domain.ActivationRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tables.UniqueKeys),
		Key:            strKey(fieldUniqueKey, codeKey(code)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	owner, _ := out.Item[fieldEmail].(*types.AttributeValueMemberS)
	if owner == nil {
		return nil, fmt.Errorf("activation request not found: %w", domain.ErrNotFound)
	}
	a, err := r.GetByEmail(ctx, owner.Value)
	if err != nil {
		return nil, err
	}
	if a.Code != code {
		return nil, fmt.Errorf("activation request not found: %w", domain.ErrNotFound)
	}
	return a, nil
}

func (r *ActivationRepo) GetByEmail(ctx context.Context, email string) (*domain.ActivationRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tables.ActivationRequests),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("activation request not found: %w", domain.ErrNotFound)
	}
	var a domain.ActivationRequest
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal activation request: %w", err)
	}
	return &a, nil
}

// Consume marks the request used and moves its user from pending to active in
// one transaction. It returns domain.ErrConflict when the user is no longer
// pending and domain.ErrNotFound when the code was consumed or expired first.
func (r *ActivationRepo) Consume(ctx context.Context, a *domain.ActivationRequest, at time.Time) error {
	at = at.UTC()
	consume, err := buildUpdateExpr(map[string]interface{}{fieldConsumedAt: at})
	if err != nil {
		return err
	}
	consume = consume.withCondition(
		map[string]string{"#code": fieldActivationCode, "#consumed": fieldConsumedAt, "#exp": fieldExpiresAt},
		map[string]types.AttributeValue{":code": strVal(a.Code), ":now": numVal(at.Unix())},
	)

	activate, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:      domain.UserStatusActive,
		fieldActivatedAt: at,
		fieldUpdatedAt:   at,
	})
	if err != nil {
		return err
	}
	activate = activate.withCondition(
		map[string]string{"#status": fieldStatus},
		map[string]types.AttributeValue{":pending": strVal(string(domain.UserStatusPending))},
	)

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(r.tables.ActivationRequests),
				Key:                       strKey(fieldEmail, a.Email),
				UpdateExpression:          aws.String(consume.Expr),
				ConditionExpression:       aws.String("#code = :code AND attribute_not_exists(#consumed) AND #exp > :now"),
				ExpressionAttributeNames:  consume.Names,
				ExpressionAttributeValues: consume.Values,
			}},
			{Update: &types.Update{
				TableName:                 aws.String(r.tables.Users),
				Key:                       strKey(fieldEmail, a.Email),
				UpdateExpression:          aws.String(activate.Expr),
				ConditionExpression:       aws.String("#status = :pending"),
				ExpressionAttributeNames:  activate.Names,
				ExpressionAttributeValues: activate.Values,
			}},
		},
	})
	if failed, ok := txFailures(err); ok {
		switch {
		case failed(1):
			return fmt.Errorf("user %s not pending: %w", a.Email, domain.ErrConflict)
		default:
			return fmt.Errorf("activation code no longer usable: %w", domain.ErrNotFound)
		}
	}
	return err
}

// Reissue replaces prev with next for a user that is still pending. prev is
// nil when the old request no longer exists. It returns domain.ErrAlreadyExists
// when next's code is taken and domain.ErrConflict when the user or prev
// changed underneath.
func (r *ActivationRepo) Reissue(ctx context.Context, prev, next *domain.ActivationRequest) error {
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal activation request: %w", err)
	}
	put := &types.Put{
		TableName:                aws.String(r.tables.ActivationRequests),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldEmail},
	}
	if prev != nil {
		put.ConditionExpression = aws.String("#code = :code AND attribute_not_exists(#consumed)")
		put.ExpressionAttributeNames = map[string]string{"#code": fieldActivationCode, "#consumed": fieldConsumedAt}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{":code": strVal(prev.Code)}
	}

	items := []types.TransactWriteItem{
		{Put: put},
		{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(r.tables.Users),
			Key:                       strKey(fieldEmail, next.Email),
			ConditionExpression:       aws.String("#status = :pending"),
			ExpressionAttributeNames:  map[string]string{"#status": fieldStatus},
			ExpressionAttributeValues: map[string]types.AttributeValue{":pending": strVal(string(domain.UserStatusPending))},
		}},
		uniqueKeyPut(r.tables.UniqueKeys, codeKey(next.Code), next.Email),
	}
	if prev != nil {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(r.tables.UniqueKeys),
			Key:       strKey(fieldUniqueKey, codeKey(prev.Code)),
		}})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if failed, ok := txFailures(err); ok {
		if failed(2) && !failed(0) && !failed(1) {
			return fmt.Errorf("activation code collision: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("activation request for %s changed: %w", next.Email, domain.ErrConflict)
	}
	return err
}

func codeKey(code string) string {
	return "activation_code#" + code
}

func uniqueKeyPut(tableName, key, email string) types.TransactWriteItem {
	item := strKey(fieldUniqueKey, key)
	item[fieldEmail] = strVal(email)
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldUniqueKey},
	}}
}
