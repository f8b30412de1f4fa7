package split

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type item = map[string]*dynamodb.AttributeValue

type fakeTable struct {
	hash, rng string
	indexes   map[string][2]string
	items     map[string]item
}

func (t *fakeTable) key(it item) string {
	k := aws.StringValue(it[t.hash].S)
	if t.rng != "" {
		k += "|" + aws.StringValue(it[t.rng].S)
	}
	return k
}

// fakeDynamo understands the key condition shapes DynamoIndex sends: ":hash" equality and an
// optional ":lower" bound on the range key.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu       sync.Mutex
	tables   map[string]*fakeTable
	pageSize int
	// unprocessOnce makes the first batch write bounce its last request.
	unprocessOnce bool
	batchCalls    int
	created       []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]*fakeTable{}}
}

func (f *fakeDynamo) CreateTableWithContext(_ aws.Context, in *dynamodb.CreateTableInput, _ ...request.Option) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.StringValue(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, "Table already exists: "+name, nil)
	}
	t := &fakeTable{indexes: map[string][2]string{}, items: map[string]item{}}
	for _, k := range in.KeySchema {
		if aws.StringValue(k.KeyType) == dynamodb.KeyTypeHash {
			t.hash = aws.StringValue(k.AttributeName)
		} else {
			t.rng = aws.StringValue(k.AttributeName)
		}
	}
	for _, gsi := range in.GlobalSecondaryIndexes {
		t.indexes[aws.StringValue(gsi.IndexName)] = [2]string{
			aws.StringValue(gsi.KeySchema[0].AttributeName),
			aws.StringValue(gsi.KeySchema[1].AttributeName),
		}
	}
	f.tables[name] = t
	f.created = append(f.created, name)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) WaitUntilTableExistsWithContext(aws.Context, *dynamodb.DescribeTableInput, ...request.WaiterOption) error {
	return nil
}

func (f *fakeDynamo) table(name *string) (*fakeTable, error) {
	t, ok := f.tables[aws.StringValue(name)]
	if !ok {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}
	return t, nil
}

func (f *fakeDynamo) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	k := t.key(in.Item)
	if _, exists := t.items[k]; exists && in.ConditionExpression != nil {
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "The conditional request failed", nil)
	}
	t.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t.items[t.key(in.Key)]}, nil
}

func (f *fakeDynamo) QueryWithContext(_ aws.Context, in *dynamodb.QueryInput, _ ...request.Option) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	hash, rng := t.hash, t.rng
	if in.IndexName != nil {
		keys := t.indexes[aws.StringValue(in.IndexName)]
		hash, rng = keys[0], keys[1]
	}
	want := aws.StringValue(in.ExpressionAttributeValues[":hash"].S)
	lower, bounded := in.ExpressionAttributeValues[":lower"]

	var matched []item
	for _, it := range t.items {
		if aws.StringValue(it[hash].S) != want {
			continue
		}
		if bounded && aws.StringValue(it[rng].S) < aws.StringValue(lower.S) {
			continue
		}
		matched = append(matched, it)
	}
	forward := in.ScanIndexForward == nil || *in.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		a, b := aws.StringValue(matched[i][rng].S), aws.StringValue(matched[j][rng].S)
		if forward {
			return a < b
		}
		return a > b
	})

	if in.ExclusiveStartKey != nil {
		start := t.key(in.ExclusiveStartKey)
		for i, it := range matched {
			if t.key(it) == start {
				matched = matched[i+1:]
				break
			}
		}
	}

	size := len(matched)
	if in.Limit != nil && int(*in.Limit) < size {
		size = int(*in.Limit)
	}
	if f.pageSize > 0 && f.pageSize < size {
		size = f.pageSize
	}
	out := &dynamodb.QueryOutput{Items: matched[:size]}
	if size < len(matched) {
		out.LastEvaluatedKey = matched[size-1]
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItemWithContext(_ aws.Context, in *dynamodb.BatchWriteItemInput, _ ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]*dynamodb.WriteRequest{}}
	for name, requests := range in.RequestItems {
		if len(requests) > 25 {
			return nil, awserr.New("ValidationException", "Too many items requested for the BatchWriteItem call", nil)
		}
		t, err := f.table(aws.String(name))
		if err != nil {
			return nil, err
		}
		if f.unprocessOnce && len(requests) > 0 {
			f.unprocessOnce = false
			out.UnprocessedItems[name] = requests[len(requests)-1:]
			requests = requests[:len(requests)-1]
		}
		for _, r := range requests {
			switch {
			case r.PutRequest != nil:
				t.items[t.key(r.PutRequest.Item)] = r.PutRequest.Item
			case r.DeleteRequest != nil:
				delete(t.items, t.key(r.DeleteRequest.Key))
			}
		}
	}
	if len(out.UnprocessedItems) == 0 {
		out.UnprocessedItems = nil
	}
	return out, nil
}

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	deletes []string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return &s3.DeleteObjectOutput{}, nil
}
