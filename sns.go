package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func NewSNSNotifier(appConfig AppConfig) (Notifier, error) {
	var notifier Notifier

	cfg, cfgErr := config.LoadDefaultConfig(context.TODO(),
		config.WithSharedConfigProfile(appConfig.Notify.Profile),
		config.WithRegion(appConfig.Notify.Region))

	if cfgErr != nil {
		return notifier, cfgErr
	}
	snsClient := &SNSClient{sns.NewFromConfig(cfg)}
	notifier = &SNSNotifier{Client: snsClient, Topic: appConfig.Notify.Topic}

	return notifier, nil
}

type SNSClientIface interface {
	PublishMessage(msg *sns.PublishInput) error
}

type SNSClient struct {
	Client *sns.Client
}

func (s *SNSClient) PublishMessage(msg *sns.PublishInput) error {
	_, publishErr := s.Client.Publish(context.TODO(), msg)
	return publishErr
}

type SNSNotifier struct {
	Client SNSClientIface
	Topic  string
}

// NotifyRunSummary publishes a digest of a run that had failures. Clean runs
// send nothing.
func (s *SNSNotifier) NotifyRunSummary(root string, summary RunSummary) error {
	if summary.FailedCount == 0 {
		return nil
	}

	// TODO: this has a maximum message size of 256KB, need to account for that
	notificationBody := fmt.Sprintf(
		"Total: %d\nUploaded: %d\nSkipped: %d\nFailed: %d\n\nFailures:\n",
		summary.TotalDiscovered,
		summary.UploadedCount,
		summary.SkippedCount,
		summary.FailedCount,
	)
	for _, failure := range summary.Failures {
		notificationBody += fmt.Sprintf("  - %s => %s\n", failure.RelPath, failure.Reason)
	}

	snsPublishReq := &sns.PublishInput{
		Message:  aws.String(notificationBody),
		TopicArn: aws.String(s.Topic),
		Subject:  aws.String(fmt.Sprintf("Upload failures: %s", root)),
	}
	publishErr := s.Client.PublishMessage(snsPublishReq)

	return publishErr
}
