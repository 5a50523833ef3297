package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"dagger.io/dagger"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common/aws/config"
)

const EcrUserName = "AWS"

const ImageName = "app-claimsync-agent"

func main() {
	ctx := context.Background()

	client, err := dagger.Connect(ctx, dagger.WithLogOutput(os.Stdout))
	if err != nil {
		panic(err)
	}
	defer client.Close()

	contextDir := client.Host().Directory(".")
	registry := os.Getenv(claimsync.Env_AwsAccountId) + ".dkr.ecr." + os.Getenv(claimsync.Env_AwsRegion) + ".amazonaws.com"
	envTag := os.Getenv(claimsync.Env_EnvTag)
	container := contextDir.
		DockerBuild(dagger.DirectoryDockerBuildOpts{
			Platform:  "linux/amd64",
			BuildArgs: []dagger.BuildArg{{Name: claimsync.Env_EnvTag, Value: envTag}},
		})
	tags := []string{
		envTag,
		os.Getenv(claimsync.Env_Branch),
		os.Getenv(claimsync.Env_Sha),
		os.Getenv(claimsync.Env_ShaTag),
	}
	// Only production images get the "latest" tag
	if envTag == claimsync.EnvTag_Prod {
		tags = append(tags, "latest")
	}
	if err = pushImage(ctx, client, container, registry, tags); err != nil {
		log.Fatalf("build: failed to push image: %v", err)
	}
}

func pushImage(ctx context.Context, client *dagger.Client, container *dagger.Container, registry string, tags []string) error {
	// Set up registry authentication
	ecrToken := client.SetSecret("EcrAuthToken", getEcrToken(ctx))
	container = container.WithRegistryAuth(registry, EcrUserName, ecrToken)
	for _, tag := range tags {
		if _, err := container.Publish(ctx, fmt.Sprintf("%s/%s:%s", registry, ImageName, tag)); err != nil {
			return err
		}
	}
	return nil
}

func getEcrToken(ctx context.Context) string {
	awsCfg, err := config.AwsConfig(ctx)
	if err != nil {
		log.Fatalf("build: error creating aws cfg: %v", err)
	}
	ecrClient := ecr.NewFromConfig(awsCfg)
	if ecrTokenOut, err := ecrClient.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{}); err != nil {
		log.Fatalf("build: error retrieving ecr auth token: %v", err)
		return ""
	} else if authToken, err := base64.StdEncoding.DecodeString(*ecrTokenOut.AuthorizationData[0].AuthorizationToken); err != nil {
		log.Fatalf("build: error decoding ecr auth token: %v", err)
		return ""
	} else {
		return strings.TrimPrefix(string(authToken), EcrUserName+":")
	}
}
