package checks

// LiveRegistry returns the AWS checks in display order.
func LiveRegistry() *Registry[Environment] {
	return mustRegistry(
		New(rootMFADef, rootMFA),
		New(passwordPolicyDef, passwordPolicy),
		New(oldAccessKeysDef, oldAccessKeys),
		New(adminAttachmentsDef, adminAttachments),
		New(cloudTrailEnabledDef, cloudTrailEnabled),
		New(cloudTrailMultiRegionDef, cloudTrailMultiRegion),
		New(logGroupRetentionDef, logGroupRetention),
		New(publicAccessBlockDef, publicAccessBlock),
		New(defaultEncryptionDef, defaultEncryption),
		New(accessLoggingDef, accessLogging),
		New(kmsKeyPolicyDef, kmsKeyPolicy),
		New(openSensitivePortsDef, openSensitivePorts),
		New(configRecorderDef, configRecorder),
	)
}
