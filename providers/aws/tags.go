package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// convertFromEC2Tags flattens the SDK's tag slice into a map. Keys are
// unique on EC2, so no collision handling is needed.
func convertFromEC2Tags(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	result := make(map[string]string, len(tags))
	for _, tag := range tags {
		result[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return result
}

// convertToEC2Tags builds the SDK tag slice for CreateTags.
func convertToEC2Tags(tags map[string]string) []ec2types.Tag {
	result := make([]ec2types.Tag, 0, len(tags))
	for key, value := range tags {
		result = append(result, ec2types.Tag{
			Key:   aws.String(key),
			Value: aws.String(value),
		})
	}
	return result
}
